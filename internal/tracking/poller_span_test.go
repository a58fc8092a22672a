package tracking

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/go-core/log"
)

func TestTick_CreatesSpans(t *testing.T) {
	// Not parallel: swaps the global OTel tracer provider.

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	records, _ := seededRecords(t, Cabinet{Name: "Main", Key: "k1"})
	fetcher := &mockFetcher{responses: []fetchResponse{
		{campaigns: []Campaign{{AdvertID: 1, Name: "Shoes", Status: StatusActive}}},
		{err: &FetchError{StatusCode: 401, Body: "unauthorized"}},
	}}
	p := NewPoller(fetcher, records, &mockNotifier{}, log.Nop(), PollHooks{})
	target := Target{Owner: owner1, Cabinet: "Main", Key: "k1"}

	if got := p.Tick(context.Background(), target); got != OutcomeOK {
		t.Fatalf("first tick = %q, want %q", got, OutcomeOK)
	}
	if got := p.Tick(context.Background(), target); got != OutcomeRejected {
		t.Fatalf("second tick = %q, want %q", got, OutcomeRejected)
	}

	var ticks []tracetest.SpanStub
	for _, s := range exporter.GetSpans() {
		if s.Name == "tracking.Tick" {
			ticks = append(ticks, s)
		}
	}
	if len(ticks) != 2 {
		t.Fatalf("tick spans = %d, want 2", len(ticks))
	}

	outcomeOf := func(s tracetest.SpanStub) string {
		for _, kv := range s.Attributes {
			if kv.Key == "wbtrack.outcome" {
				return kv.Value.AsString()
			}
		}
		return ""
	}

	if got := outcomeOf(ticks[0]); got != string(OutcomeOK) {
		t.Errorf("span[0] outcome = %q, want %q", got, OutcomeOK)
	}
	if ticks[0].Status.Code == codes.Error {
		t.Error("span[0] status = Error, want unset")
	}
	if got := outcomeOf(ticks[1]); got != string(OutcomeRejected) {
		t.Errorf("span[1] outcome = %q, want %q", got, OutcomeRejected)
	}
	if ticks[1].Status.Code != codes.Error {
		t.Errorf("span[1] status = %v, want Error", ticks[1].Status.Code)
	}
	if len(ticks[1].Events) == 0 {
		t.Error("span[1] has no recorded error event")
	}
}
