package alert

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/humanloop/internal/logging"
)

// deliveryTimeout bounds one event's delivery to one webhook, retries included.
const deliveryTimeout = 30 * time.Second

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs []Config
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []Config, logger *slog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{configs: configs, logger: logger}
}

// Dispatch sends the event to all webhooks whose Events list matches
// event.Decision. Fires goroutines; does not block the caller.
func (d *Dispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	}
	for _, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg Config) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
			defer cancel()
			if err := Send(ctx, cfg, event); err != nil {
				d.logger.Error("alert delivery failed", "url", cfg.URL, "session_id", event.SessionID, "error", err)
			}
		}(cfg)
	}
}

// Wait blocks until every in-flight delivery has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func matches(events []string, event Event) bool {
	for _, e := range events {
		if strings.EqualFold(e, event.Decision) {
			return true
		}
	}
	return false
}
