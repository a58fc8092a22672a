package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/linnemanlabs/go-core/log"
)

func TestShortenFuncName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full path", "github.com/linnemanlabs/wbtrack/internal/tracking/pgstore.(*Store).Load", "(*Store).Load"},
		{"already short", "(*Store).Load", "Load"},
		{"empty string", "", ""},
		{"no dots", "main", "main"},
		{"no slashes", "pgstore.(*Store).Save", "(*Store).Save"},
		{"single segment", "foo.Bar", "Bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := shortenFuncName(tt.in); got != tt.want {
				t.Errorf("shortenFuncName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWithOperation_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithOperation(context.Background(), "poll")
	if got := operationFromContext(ctx); got != "poll" {
		t.Errorf("operationFromContext = %q, want %q", got, "poll")
	}
}

func TestWithOperation_Empty(t *testing.T) {
	t.Parallel()

	ctx := WithOperation(context.Background(), "")
	if got := operationFromContext(ctx); got != "unknown" {
		t.Errorf("operationFromContext = %q, want %q", got, "unknown")
	}
}

// observations are recorded into a shared slice, so these tests do not run in parallel.

type observation struct {
	operation string
	outcome   string
}

func captureObserver(t *testing.T) (*[]observation, *sync.Mutex) {
	t.Helper()
	var mu sync.Mutex
	var got []observation
	SetQueryObserver(QueryObserverFunc(func(_ context.Context, op, outcome string, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, observation{op, outcome})
	}))
	t.Cleanup(func() { SetQueryObserver(nil) })
	return &got, &mu
}

func TestSetQueryObserver(t *testing.T) {
	defer SetQueryObserver(nil)

	called := false
	SetQueryObserver(QueryObserverFunc(func(_ context.Context, _, _ string, _ time.Duration) {
		called = true
	}))
	got := getQueryObserver()
	if got == nil {
		t.Fatal("expected non-nil observer after Set")
	}
	got.ObserveQuery(context.Background(), "poll", "ok", time.Millisecond)
	if !called {
		t.Error("observer was not called")
	}

	SetQueryObserver(nil)
	if got := getQueryObserver(); got != nil {
		t.Errorf("expected nil observer after Set(nil), got %v", got)
	}
}

func TestLoggingTracer_ObservesQueries(t *testing.T) {
	obs, mu := captureObserver(t)

	tr := wrapQueryTracer(nil)
	ctx := log.WithContext(WithOperation(context.Background(), "bot"), log.Nop())

	ctx = tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	time.Sleep(time.Millisecond)
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("SELECT 1")})

	ctx = tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT broken"})
	time.Sleep(time.Millisecond)
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("syntax error")})

	mu.Lock()
	defer mu.Unlock()
	want := []observation{{"bot", "ok"}, {"bot", "error"}}
	if len(*obs) != len(want) {
		t.Fatalf("observations = %v, want %v", *obs, want)
	}
	for i := range want {
		if (*obs)[i] != want[i] {
			t.Errorf("observation[%d] = %v, want %v", i, (*obs)[i], want[i])
		}
	}
}

func TestLoggingTracer_CallsInner(t *testing.T) {
	t.Parallel()

	inner := &countingTracer{}
	tr := wrapQueryTracer(inner)
	ctx := log.WithContext(context.Background(), log.Nop())

	ctx = tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

	if inner.starts != 1 || inner.ends != 1 {
		t.Errorf("inner starts=%d ends=%d, want 1/1", inner.starts, inner.ends)
	}
}

type countingTracer struct {
	starts, ends int
}

func (c *countingTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	c.starts++
	return ctx
}

func (c *countingTracer) TraceQueryEnd(_ context.Context, _ *pgx.Conn, _ pgx.TraceQueryEndData) {
	c.ends++
}
