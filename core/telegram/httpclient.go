package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/topicrelay/core/telegram/netutil"
)

const (
	dialTimeout         = 5 * time.Second
	tlsHandshakeTimeout = 5 * time.Second
	idleConnTimeout     = 30 * time.Second
	keepAliveInterval   = 30 * time.Second
	dialRetryBackoff    = time.Second
	// clientTimeout must exceed the long-poll timeout plus network slack.
	clientTimeout = 75 * time.Second
)

// BuildHTTPClient returns the HTTP client used for Bot API calls. retries
// bounds how often a request is repeated after a dial failure; other
// failures are returned as is so a relayed message is never sent twice.
func BuildHTTPClient(retries int) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAliveInterval}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
	}
	return &http.Client{
		Timeout: clientTimeout,
		Transport: &dialRetryTransport{
			base:    transport,
			retries: max(retries, 0),
			backoff: dialRetryBackoff,
		},
	}
}

type dialRetryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *dialRetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.retries && netutil.DialFailed(err); attempt++ {
		next := req.Clone(req.Context())
		if req.Body != nil {
			if req.GetBody == nil {
				return nil, err
			}
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			next.Body = body
		}

		timer := time.NewTimer(t.backoff * time.Duration(attempt))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
		resp, err = t.base.RoundTrip(next)
	}
	return resp, err
}
