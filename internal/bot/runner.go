package bot

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

// DefaultLongPoll is how long one update request waits for new messages.
const DefaultLongPoll = 30 * time.Second

// UpdateSource long-polls for inbound messages with ids >= offset.
type UpdateSource interface {
	Updates(ctx context.Context, offset int64, wait time.Duration) ([]Inbound, error)
}

// Runner feeds updates from a source into a Handler one at a time.
type Runner struct {
	source   UpdateSource
	handler  *Handler
	logger   log.Logger
	longPoll time.Duration

	newBackOff func() backoff.BackOff
}

// NewRunner creates a Runner. longPoll <= 0 selects DefaultLongPoll.
func NewRunner(source UpdateSource, handler *Handler, longPoll time.Duration, logger log.Logger) *Runner {
	if source == nil {
		panic(xerrors.New("update source is required"))
	}
	if handler == nil {
		panic(xerrors.New("handler is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if longPoll <= 0 {
		longPoll = DefaultLongPoll
	}
	return &Runner{
		source:   source,
		handler:  handler,
		logger:   logger,
		longPoll: longPoll,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = time.Minute
			return b
		},
	}
}

// Run polls until ctx is cancelled. Source errors are retried with
// exponential backoff; handler errors are logged and the update is
// acknowledged anyway so a poison message cannot block the loop.
func (r *Runner) Run(ctx context.Context) error {
	var offset int64
	bo := r.newBackOff()

	r.logger.Info(ctx, "update loop started", "long_poll", r.longPoll.String())
	defer r.logger.Info(context.WithoutCancel(ctx), "update loop stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := r.source.Updates(ctx, offset, r.longPoll)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				wait = time.Minute
			}
			r.logger.Warn(ctx, "update poll failed, retrying", "error", err, "retry_in", wait.String())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if err := r.handler.Handle(ctx, u); err != nil {
				r.logger.Error(ctx, err, "failed to handle update", "update_id", u.UpdateID, "owner", string(u.Owner))
			}
		}
	}
}
