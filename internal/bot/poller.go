package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"layoutbot/internal/integrations/telegram"
)

const defaultBackoff = 3 * time.Second

type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update) error
}

// Poller long-polls getUpdates and hands updates to the handler in order.
type Poller struct {
	source  UpdateSource
	handler UpdateHandler
	timeout time.Duration
	backoff time.Duration
	log     *slog.Logger

	offset int64
}

func NewPoller(source UpdateSource, handler UpdateHandler, timeout time.Duration, log *slog.Logger) (*Poller, error) {
	if source == nil {
		return nil, errors.New("bot: update source must not be nil")
	}
	if handler == nil {
		return nil, errors.New("bot: update handler must not be nil")
	}
	if timeout < 0 {
		timeout = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{source: source, handler: handler, timeout: timeout, backoff: defaultBackoff, log: log}, nil
}

// Offset is the next update id the poller will ask for.
func (p *Poller) Offset() int64 { return p.offset }

// Run polls until ctx is done. Fetch errors are logged and retried after a
// fixed pause, or after the server's retry_after when it sends one.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("polling for updates", "timeout", p.timeout)
	for {
		if ctx.Err() != nil {
			p.log.Info("polling stopped")
			return nil
		}
		updates, err := p.source.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				p.log.Info("polling stopped")
				return nil
			}
			wait := p.backoff
			var apiErr *telegram.APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			p.log.Error("get updates failed", "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				p.log.Info("polling stopped")
				return nil
			case <-time.After(wait):
			}
			continue
		}
		for _, u := range updates {
			uctx := WithCorrelationID(ctx, uuid.NewString())
			if err := p.handler.HandleUpdate(uctx, u); err != nil {
				p.log.Error("handle update failed", "update_id", u.UpdateID, "err", err)
			}
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
		}
	}
}
