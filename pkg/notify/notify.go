// Package notify forwards confirmed violation events to an external
// webhook so proctoring platforms can raise alerts without polling the
// flag store.
package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/sensai-labs/go-proctor/internal/httpc"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// Config configures the webhook notifier.
type Config struct {
	// URL receives one POST per confirmed violation, body = event JSON.
	URL string
	// Timeout bounds each delivery attempt.
	Timeout time.Duration
}

// DefaultConfig returns conservative webhook settings.
func DefaultConfig() Config {
	return Config{Timeout: 5 * time.Second}
}

// Notifier POSTs each violation event to the configured URL. It
// implements the pipeline Sink interface; delivery failures surface to
// the emitter, which logs and drops them without retrying.
type Notifier struct {
	url    string
	client *http.Client
}

// New builds a notifier for cfg.URL.
func New(cfg Config) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Notifier{url: cfg.URL, client: httpc.NewClient(cfg.Timeout)}
}

// Emit delivers one event.
func (n *Notifier) Emit(ctx context.Context, e violation.Event) error {
	return httpc.PostJSON(ctx, n.client, n.url, e)
}
