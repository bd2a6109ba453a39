// Package requestctx carries request-scoped values shared by middleware and handlers.
package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "catalog-api/requestctx/logger"
	traceContextKey  contextKey = "catalog-api/requestctx/trace"
	localeContextKey contextKey = "catalog-api/requestctx/locale"
	actorContextKey  contextKey = "catalog-api/requestctx/actor"
	summaryKey       contextKey = "catalog-api/requestctx/summary"
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context for downstream usage.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithLocale records the negotiated response language ("en" or "ar").
func WithLocale(ctx context.Context, lang string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if summary := summaryFrom(ctx); summary != nil {
		summary.set(func(s *Summary) { s.Locale = lang })
	}
	return context.WithValue(ctx, localeContextKey, lang)
}

// Locale returns the negotiated language, or "" when no negotiation ran.
func Locale(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	lang, _ := ctx.Value(localeContextKey).(string)
	return lang
}

// WithActor records the id of the authenticated caller for logs and audit fields.
func WithActor(ctx context.Context, actorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if summary := summaryFrom(ctx); summary != nil {
		summary.set(func(s *Summary) { s.Actor = actorID })
	}
	return context.WithValue(ctx, actorContextKey, actorID)
}

// Actor returns the caller id stored by the auth middleware.
func Actor(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	actor, _ := ctx.Value(actorContextKey).(string)
	return actor
}

// Summary is the part of the request state that inner middleware learns and the access log reports.
type Summary struct {
	Actor  string
	Locale string
}

type summaryHolder struct {
	mu      sync.Mutex
	summary Summary
}

func (h *summaryHolder) set(update func(*Summary)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	update(&h.summary)
}

// WithSummary installs a collector so values recorded by WithActor and WithLocale on derived
// contexts are visible through RequestSummary on this one.
func WithSummary(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, summaryKey, &summaryHolder{})
}

// RequestSummary returns what was collected since WithSummary.
func RequestSummary(ctx context.Context) Summary {
	holder := summaryFrom(ctx)
	if holder == nil {
		return Summary{}
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	return holder.summary
}

func summaryFrom(ctx context.Context) *summaryHolder {
	holder, _ := ctx.Value(summaryKey).(*summaryHolder)
	return holder
}
