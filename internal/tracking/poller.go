package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

var tracer = otel.Tracer("github.com/linnemanlabs/wbtrack/internal/tracking")

// Fetcher returns the current monitored campaigns for a cabinet key.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]Campaign, error)
}

// Notifier delivers a rendered message to the owner's chat.
type Notifier interface {
	Notify(ctx context.Context, owner OwnerID, text string) error
}

// Target is the immutable input of one pair's poll job.
type Target struct {
	Owner   OwnerID
	Cabinet string
	Key     string
}

// TickOutcome classifies how a tick ended.
type TickOutcome string

const (
	OutcomeOK           TickOutcome = "ok"
	OutcomeFetchFailed  TickOutcome = "fetch_failed"
	OutcomeRejected     TickOutcome = "credential_rejected"
	OutcomeStale        TickOutcome = "stale"
	OutcomeStoreFailed  TickOutcome = "store_failed"
	OutcomeNotifyFailed TickOutcome = "notify_failed"
	OutcomePanic        TickOutcome = "panic"
)

// PollHooks receives per-tick observations. Nil fields are skipped.
type PollHooks struct {
	OnTick        func(outcome TickOutcome, duration float64)
	OnFetch       func(duration float64, err error)
	OnTransitions func(n int)
	OnNotify      func(err error)
}

// Poller executes single poll ticks: fetch, diff, store, notify.
type Poller struct {
	fetcher  Fetcher
	records  *Records
	notifier Notifier
	logger   log.Logger
	hooks    PollHooks
}

// NewPoller creates a Poller. notifier may be nil, in which case detected
// transitions are only logged.
func NewPoller(fetcher Fetcher, records *Records, notifier Notifier, logger log.Logger, hooks PollHooks) *Poller {
	if fetcher == nil {
		panic(xerrors.New("fetcher is required"))
	}
	if records == nil {
		panic(xerrors.New("records are required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Poller{
		fetcher:  fetcher,
		records:  records,
		notifier: notifier,
		logger:   logger,
		hooks:    hooks,
	}
}

// Tick runs one poll for the target. It never panics and never returns an
// error: failures are logged and reported through the outcome.
func (p *Poller) Tick(ctx context.Context, t Target) (outcome TickOutcome) {
	start := time.Now()
	tickID := ulid.Make().String()
	L := p.logger.With("owner", string(t.Owner), "cabinet", t.Cabinet, "tick_id", tickID)

	ctx, span := tracer.Start(ctx, "tracking.Tick", trace.WithAttributes(
		attribute.String("wbtrack.owner", string(t.Owner)),
		attribute.String("wbtrack.cabinet", t.Cabinet),
	))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("tick panic: %v", rec)
			L.Error(ctx, err, "poll tick panicked")
			span.RecordError(err)
			outcome = OutcomePanic
		}
		if outcome != OutcomeOK && outcome != OutcomeStale {
			span.SetStatus(codes.Error, string(outcome))
		}
		span.SetAttributes(attribute.String("wbtrack.outcome", string(outcome)))
		if p.hooks.OnTick != nil {
			p.hooks.OnTick(outcome, time.Since(start).Seconds())
		}
	}()

	fetchStart := time.Now()
	campaigns, err := p.fetcher.Fetch(ctx, t.Key)
	if p.hooks.OnFetch != nil {
		p.hooks.OnFetch(time.Since(fetchStart).Seconds(), err)
	}
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrCredentialRejected) {
			L.Warn(ctx, "campaign fetch rejected credential, skipping tick", "error", err)
			return OutcomeRejected
		}
		L.Warn(ctx, "campaign fetch failed, skipping tick", "error", err)
		return OutcomeFetchFailed
	}

	events, ok, err := p.records.ApplyPoll(ctx, t.Owner, t.Cabinet, campaigns)
	if err != nil {
		L.Error(ctx, err, "failed to store observed campaign states")
		return OutcomeStoreFailed
	}
	if !ok {
		L.Info(ctx, "cabinet no longer exists, dropping tick")
		return OutcomeStale
	}

	L.Info(ctx, "poll tick complete",
		"campaigns", len(campaigns),
		"transitions", len(events),
	)

	if len(events) == 0 {
		return OutcomeOK
	}
	if p.hooks.OnTransitions != nil {
		p.hooks.OnTransitions(len(events))
	}
	if p.notifier == nil {
		return OutcomeOK
	}

	err = p.notifier.Notify(ctx, t.Owner, RenderTransitions(t.Cabinet, events))
	if p.hooks.OnNotify != nil {
		p.hooks.OnNotify(err)
	}
	if err != nil {
		L.Error(ctx, err, "failed to deliver transition notification", "transitions", len(events))
		return OutcomeNotifyFailed
	}
	return OutcomeOK
}
