package logger

import (
	"log/slog"
	"strings"
)

// levelName buckets custom levels into the four names the log pipeline
// indexes on.
func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

// Closed vocabularies for enum-like keys. Unknown outcome and verdict values
// are dropped; unknown statuses are kept lowercased.
var (
	statusValues  = enumSet("ok", "fail", "skip", "retry", "rate_limited", "cancelled")
	outcomeValues = enumSet("ok", "fail", "cancelled", "rate_limited")
	// verdictValues are the content filter outcomes.
	verdictValues = enumSet("pass", "keyword", "filtered", "auto_reply")
)

func enumSet(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func normalizeStatus(status string) (string, bool) {
	status = strings.ToLower(strings.TrimSpace(status))
	_, known := statusValues[status]
	return status, known && status != ""
}

func normalizeOutcome(outcome string) (string, bool) {
	return lookupEnum(outcomeValues, outcome)
}

func normalizeVerdict(verdict string) (string, bool) {
	return lookupEnum(verdictValues, verdict)
}

func lookupEnum(allowed map[string]struct{}, v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	if _, ok := allowed[v]; !ok {
		return "", false
	}
	return v, true
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"operation",
	"op",
	"cb_key",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"count",
	"payload",
	"username",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"target_user",
	"topic_id",
	"message_id",
	"key",
	"action",
	"reason",
	"verdict",
	"pattern",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"rate_limited",
	"collapsed",
	"repeats",
	"pending_count",
	"delivery_id",
}

// Component names attached to log lines.
const (
	ComponentRelay    = "service.relay"
	ComponentFilter   = "service.filter"
	ComponentVerify   = "service.verify"
	ComponentConsole  = "service.console"
	ComponentSettings = "service.settings"
	ComponentStore    = "db.store"
	ComponentSender   = "tg.sender"
	ComponentApp      = "app"
	ComponentDB       = "db"
	ComponentMigrate  = "db.migrate"
	ComponentTG       = "tg"
	ComponentWire     = "tg.wire"
	ComponentIngress  = "tg.ingress"
)
