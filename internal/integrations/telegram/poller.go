package telegram

import (
	"context"
	"errors"
	"hash/fnv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"insurance-bot/internal/domain"
)

// InputHandler consumes one conversation input.
type InputHandler interface {
	Handle(ctx context.Context, in domain.Input) error
}

// Poll long-polls for updates until ctx is cancelled. Inputs are spread
// over workers by session so one session is always handled by the same
// worker, in arrival order, while different sessions proceed in parallel.
func (c *Client) Poll(ctx context.Context, h InputHandler, workers int) error {
	if h == nil {
		return errors.New("telegram: handler must not be nil")
	}
	if workers <= 0 {
		workers = 1
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := c.api.GetUpdatesChan(cfg)
	defer c.api.StopReceivingUpdates()

	return c.dispatch(ctx, updates, h, workers)
}

func (c *Client) dispatch(ctx context.Context, updates <-chan tgbotapi.Update, h InputHandler, workers int) error {
	g, gctx := errgroup.WithContext(ctx)

	queues := make([]chan domain.Input, workers)
	for i := range queues {
		q := make(chan domain.Input, 16)
		queues[i] = q
		g.Go(func() error {
			for in := range q {
				if err := h.Handle(gctx, in); err != nil {
					c.log.Error("telegram.update.failed", "session_id", in.SessionID, "kind", in.Kind.String(), "err", err)
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return nil
			case u, ok := <-updates:
				if !ok {
					return nil
				}
				in, ok := ToInput(u)
				if !ok {
					c.log.Debug("telegram.update.ignored", "update_id", u.UpdateID)
					continue
				}
				select {
				case queues[shard(in.SessionID, workers)] <- in:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func shard(sessionID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(n))
}
