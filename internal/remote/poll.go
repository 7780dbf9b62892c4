package remote

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/matheus3301/chatsync/internal/domain"
	"go.uber.org/zap"
)

// healthyReset is how long polling must succeed before backoff starts over.
const healthyReset = 60 * time.Second

type reconnector struct {
	baseDelay    time.Duration
	maxDelay     time.Duration
	attempt      int
	healthySince time.Time
}

func newReconnector(base, maxDelay time.Duration) *reconnector {
	return &reconnector{baseDelay: base, maxDelay: maxDelay}
}

func (r *reconnector) markHealthy(now time.Time) {
	if r.healthySince.IsZero() {
		r.healthySince = now
	}
}

func (r *reconnector) nextDelay(now time.Time) time.Duration {
	if !r.healthySince.IsZero() && now.Sub(r.healthySince) > healthyReset {
		r.attempt = 0
	}
	r.healthySince = time.Time{}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ChatDeltas long-polls the delta endpoint. After a batch the next poll
// waits ShortPollInterval when the server has more changes and PollInterval
// otherwise. Errors are emitted and polling resumes with exponential backoff.
func (c *Client) ChatDeltas(ctx context.Context, since *time.Time) <-chan DeltaResult {
	out := make(chan DeltaResult)

	go func() {
		defer close(out)
		recon := newReconnector(c.cfg.RetryBaseDelay, c.cfg.RetryMaxDelay)
		var cursor *time.Time
		if since != nil {
			t := *since
			cursor = &t
		}

		for {
			delta, err := c.fetchDeltas(ctx, cursor)
			if ctx.Err() != nil {
				return
			}

			var wait time.Duration
			if err != nil {
				wait = recon.nextDelay(c.now())
				c.logger.Warn("delta poll failed", zap.Error(err), zap.Duration("retry_in", wait))
				if !sendResult(ctx, out, DeltaResult{Err: err}) {
					return
				}
			} else {
				recon.markHealthy(c.now())
				if !sendResult(ctx, out, DeltaResult{Delta: delta}) {
					return
				}
				t := delta.ToTimestamp
				cursor = &t
				wait = c.cfg.PollInterval
				if delta.HasMoreChanges {
					wait = c.cfg.ShortPollInterval
				}
			}

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (c *Client) fetchDeltas(ctx context.Context, since *time.Time) (*domain.ChatListDelta, error) {
	var q url.Values
	if since != nil {
		q = url.Values{"since": {since.UTC().Format(time.RFC3339Nano)}}
	}
	var dto chatListDeltaDTO
	if err := c.do(ctx, http.MethodGet, routeChatDeltas, q, nil, &dto); err != nil {
		return nil, err
	}
	delta, err := dto.toDomain()
	if err != nil {
		c.logger.Warn("malformed delta batch", zap.Error(err))
		return nil, ErrServerError
	}
	return delta, nil
}

func sendResult[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
