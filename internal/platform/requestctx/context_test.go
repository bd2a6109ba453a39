package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerDefaultsToNoop(t *testing.T) {
	if Logger(context.Background()) != NoopLogger() {
		t.Fatalf("expected noop logger for empty context")
	}
	logger := zap.NewExample()
	ctx := WithLogger(context.Background(), logger)
	if Logger(ctx) != logger {
		t.Fatalf("expected stored logger")
	}
}

func TestTraceLocaleAndActorRoundTrip(t *testing.T) {
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc", SpanID: "def"})
	ctx = WithLocale(ctx, "ar")
	ctx = WithActor(ctx, "uid-1")

	if got := TraceID(ctx); got != "abc" {
		t.Fatalf("expected trace abc, got %q", got)
	}
	if got := Locale(ctx); got != "ar" {
		t.Fatalf("expected locale ar, got %q", got)
	}
	if got := Actor(ctx); got != "uid-1" {
		t.Fatalf("expected actor uid-1, got %q", got)
	}
	if TraceID(context.Background()) != "" || Locale(context.Background()) != "" {
		t.Fatalf("expected empty values on bare context")
	}
}

func TestSummaryCollectsValuesFromDerivedContexts(t *testing.T) {
	outer := WithSummary(context.Background())
	inner := WithLocale(outer, "ar")
	_ = WithActor(inner, "uid-9")

	got := RequestSummary(outer)
	if got.Actor != "uid-9" || got.Locale != "ar" {
		t.Fatalf("unexpected summary %+v", got)
	}
	if RequestSummary(context.Background()) != (Summary{}) {
		t.Fatalf("expected empty summary without collector")
	}
}
