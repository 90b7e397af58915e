// Package logger is the structured logging layer: a slog handler with a
// fixed key order and JSON or key=value output, an async writer, sampled
// debug lines, and context helpers carrying correlation ids.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/topicrelay/core/buildinfo"
	coreconfig "github.com/m3rciful/topicrelay/core/config"
)

const defaultDebugSample = "1/50"

var (
	initOnce sync.Once
	stopOnce sync.Once

	sink    *asyncWriter
	closers []io.Closer

	levelVar slog.LevelVar

	debugSampler = newRatioSampler(1, 50)
	// sampleAll is set by TRACE=1 or LOG_TRACE=1.
	sampleAll bool

	// L is the root logger. It stays nil until InitLogger succeeds, and
	// every helper in this package tolerates that.
	L *slog.Logger
)

// options is the logging setup derived from config.
type options struct {
	level    slog.Level
	format   logFormat
	keyOrder []string
	num, den int
	profile  string
	file     string
}

func resolveOptions(cfg *coreconfig.Config) options {
	var lc coreconfig.LoggingConfig
	if cfg != nil {
		lc = cfg.Logging
	}
	o := options{
		level:    parseLevel(lc.Level),
		profile:  strings.ToLower(strings.TrimSpace(lc.Profile)),
		keyOrder: parseKeyOrder(lc.KeysOrder),
	}
	if o.profile == "" {
		o.profile = "prod"
	}

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		o.format = formatKV
	case "json":
		o.format = formatJSON
	default:
		o.format = formatJSON
		if o.profile == "debug" || o.profile == "dev" {
			o.format = formatKV
		}
	}

	spec := strings.TrimSpace(lc.DebugSample)
	if spec == "" {
		spec = defaultDebugSample
	}
	o.num, o.den = parseRatioSpec(spec)
	if (o.num <= 0 || o.den <= 0) && !(o.num == 0 && o.den == 0) {
		o.num, o.den = parseRatioSpec(defaultDebugSample)
	}

	dir, file := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile)
	if dir != "" && file != "" {
		o.file = filepath.Join(dir, file)
	}
	return o
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	var order []string
	if raw != "" && raw != "default" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
	}
	if len(order) == 0 {
		return append([]string(nil), defaultKeyOrder...)
	}
	return order
}

// InitLogger installs the global logger. Only the first call has effect.
// A log file that cannot be opened is reported and logging continues on
// stdout only.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		o := resolveOptions(cfg)
		levelVar.Set(o.level)
		debugSampler.Set(o.num, o.den)
		sampleAll = truthy(os.Getenv("TRACE")) || truthy(os.Getenv("LOG_TRACE"))

		outputs := []io.Writer{os.Stdout}
		var fileErr error
		if o.file != "" {
			f, openErr := openLogFile(o.file)
			if openErr != nil {
				fileErr = openErr
			} else {
				outputs = append(outputs, f)
				closers = append(closers, f)
			}
		}
		sink = newAsyncWriter(outputs, 0)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   sink,
			format:   o.format,
			keyOrder: o.keyOrder,
		}))
		slog.SetDefault(L)

		Info(context.Background(), ComponentApp, "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", o.profile),
		)
		if fileErr != nil {
			Warn(context.Background(), ComponentApp, "log.file",
				slog.String("status", "fail"),
				slog.String("err", fileErr.Error()),
			)
		}
	})
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Shutdown drains queued lines and closes the log file. Later calls are
// no-ops.
func Shutdown() error {
	var err error
	stopOnce.Do(func() {
		var errs []error
		if sink != nil {
			errs = append(errs, sink.Flush(), sink.Close())
		}
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
		err = errors.Join(errs...)
	})
	return err
}

// ShouldSampleDebug reports whether a high-volume debug line should be
// written now.
func ShouldSampleDebug() bool {
	return sampleAll || debugSampler.Allow()
}

// Component returns L scoped to name, or nil before InitLogger.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// LogEvent writes one event line through lg, falling back to the context
// logger and then to L.
func LogEvent(ctx context.Context, lg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if lg == nil {
		lg = FromContext(ctx)
	}
	if lg == nil {
		lg = L
	}
	if lg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	lg.LogAttrs(orBackground(ctx), level, "", attrs...)
}

// Event writes an event line for component.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

// Debug writes a debug event.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info writes an info event.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn writes a warn event.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error writes an error event.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}
