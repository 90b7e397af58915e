package telegram

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"
)

// AllowedUpdates lists the update kinds the relay consumes.
var AllowedUpdates = []string{"message", "edited_message", "callback_query"}

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen      string
	Port        int
	URL         string
	Path        string
	SecretToken string
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
	// BeforeDeliver is passed to the webhook ingress.
	BeforeDeliver func(ctx context.Context) error
}

// BuildPoller returns the chi ingress for webhook mode and a long poller otherwise.
func BuildPoller(opts PollerOptions) tele.Poller {
	runMode := strings.ToLower(strings.TrimSpace(opts.RunMode))
	if runMode == RunModeWebhook {
		return NewIngress(IngressOptions{
			Listen:         joinHostPort(opts.Webhook.Listen, opts.Webhook.Port),
			Path:           opts.Webhook.Path,
			PublicURL:      opts.Webhook.URL,
			SecretToken:    opts.Webhook.SecretToken,
			BeforeDeliver:  opts.BeforeDeliver,
			AllowedUpdates: AllowedUpdates,
		})
	}

	timeoutSec := opts.LongPollTimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	return &tele.LongPoller{
		Timeout:        time.Duration(timeoutSec) * time.Second,
		AllowedUpdates: AllowedUpdates,
	}
}

func joinHostPort(host string, port int) string {
	if port <= 0 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
