package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/topicrelay/core/logger"
)

const (
	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxUpdateBytes    = 1 << 20
)

// IngressOptions configures the webhook receiver.
type IngressOptions struct {
	Listen      string
	Path        string
	PublicURL   string
	SecretToken string
	// BeforeDeliver runs ahead of every accepted update; an error aborts the
	// delivery with HTTP 500.
	BeforeDeliver func(ctx context.Context) error
	// AllowedUpdates is sent to setWebhook when non-empty.
	AllowedUpdates []string
}

// Ingress is a tele.Poller that receives webhook deliveries over a chi router.
type Ingress struct {
	opts   IngressOptions
	router chi.Router

	mu   sync.RWMutex
	dest chan<- tele.Update
}

var _ tele.Poller = (*Ingress)(nil)

// NewIngress builds the receiver. The HTTP server starts in Poll.
func NewIngress(opts IngressOptions) *Ingress {
	if opts.Path == "" {
		opts.Path = "/"
	}
	in := &Ingress{opts: opts}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post(opts.Path, in.deliver)
	r.NotFound(acknowledge)
	r.MethodNotAllowed(acknowledge)
	in.router = r
	return in
}

// Handler exposes the router.
func (in *Ingress) Handler() http.Handler {
	return in.router
}

// Attach sets the channel receiving decoded updates.
func (in *Ingress) Attach(dest chan<- tele.Update) {
	in.mu.Lock()
	in.dest = dest
	in.mu.Unlock()
}

// Poll registers the webhook, serves deliveries until stop is closed and
// then shuts the server down.
func (in *Ingress) Poll(b *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	in.Attach(dest)

	if in.opts.PublicURL != "" {
		hook := &tele.Webhook{
			Endpoint:       &tele.WebhookEndpoint{PublicURL: in.opts.PublicURL},
			SecretToken:    in.opts.SecretToken,
			AllowedUpdates: in.opts.AllowedUpdates,
		}
		if err := b.SetWebhook(hook); err != nil {
			logger.Error(context.Background(), logger.ComponentIngress, "webhook.set",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		} else {
			logger.Info(context.Background(), logger.ComponentIngress, "webhook.set",
				slog.String("status", "ok"),
				slog.String("public_url", in.opts.PublicURL),
			)
		}
	}

	srv := &http.Server{
		Addr:              in.opts.Listen,
		Handler:           in.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info(context.Background(), logger.ComponentIngress, "listen",
			slog.String("listen", in.opts.Listen),
			slog.String("path", in.opts.Path),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), logger.ComponentIngress, "listen",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}()

	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func (in *Ingress) deliver(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	deliveryID := uuid.NewString()
	ctx := r.Context()

	if in.opts.SecretToken != "" {
		got := r.Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(in.opts.SecretToken)) != 1 {
			logger.Warn(ctx, logger.ComponentIngress, "delivery.reject",
				slog.String("delivery_id", deliveryID),
				slog.String("reason", "secret_token"),
			)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
	}

	if in.opts.BeforeDeliver != nil {
		if err := in.opts.BeforeDeliver(ctx); err != nil {
			logger.Error(ctx, logger.ComponentIngress, "delivery.init",
				slog.String("delivery_id", deliveryID),
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpdateBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	var upd tele.Update
	if err := json.Unmarshal(body, &upd); err != nil {
		logger.Warn(ctx, logger.ComponentIngress, "delivery.decode",
			slog.String("delivery_id", deliveryID),
			slog.String("err", err.Error()),
		)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid update"})
		return
	}

	in.mu.RLock()
	dest := in.dest
	in.mu.RUnlock()
	if dest == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "not ready"})
		return
	}
	select {
	case dest <- upd:
	case <-ctx.Done():
		return
	}

	logger.Debug(ctx, logger.ComponentIngress, "delivery",
		slog.String("delivery_id", deliveryID),
		slog.Int("update_id", upd.ID),
		slog.String("status", "ok"),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	acknowledge(w, r)
}

func acknowledge(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
