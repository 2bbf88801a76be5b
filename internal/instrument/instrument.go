// Package instrument times operations as spans. A finished span is
// observed in the span duration histogram and logged at debug level.
package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"datagate/internal/logger"
	"datagate/internal/metrics"
)

type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
}

type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	SetEntity(entity, recordID string)
	TraceID() string
	SpanID() string
}

func newUUID() string {
	return uuid.New().String()
}

type traceKey struct{}

// trace is the tracing state carried by a context. Each With* call
// stores a modified copy.
type trace struct {
	id     string
	parent string
	user   string
	inst   Instrumenter
}

func traceFrom(ctx context.Context) trace {
	t, _ := ctx.Value(traceKey{}).(trace)
	return t
}

func withTrace(ctx context.Context, update func(*trace)) context.Context {
	t := traceFrom(ctx)
	update(&t)
	return context.WithValue(ctx, traceKey{}, t)
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withTrace(ctx, func(t *trace) { t.id = traceID })
}

func GetTraceID(ctx context.Context) string {
	return traceFrom(ctx).id
}

func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return withTrace(ctx, func(t *trace) { t.inst = inst })
}

// GetInstrumenter returns the context's instrumenter, or a no-op one.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if inst := traceFrom(ctx).inst; inst != nil {
		return inst
	}
	return &NoopInstrumenter{}
}

// WithUserID records the caller on spans started from ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withTrace(ctx, func(t *trace) { t.user = userID })
}

// Start is shorthand for GetInstrumenter(ctx).StartSpan.
func Start(ctx context.Context, source, component, action string) (context.Context, Span) {
	return GetInstrumenter(ctx).StartSpan(ctx, source, component, action)
}

type InstrumenterImpl struct {
	log *zap.Logger
}

func NewInstrumenter() *InstrumenterImpl {
	return &InstrumenterImpl{log: logger.Named("trace")}
}

// StartSpan opens a span; spans started from the returned context are its
// children.
func (i *InstrumenterImpl) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	t := traceFrom(ctx)
	span := &SpanImpl{
		trace:     t,
		spanID:    newUUID(),
		source:    source,
		component: component,
		action:    action,
		status:    "ok",
		start:     time.Now(),
		log:       i.log,
	}
	return withTrace(ctx, func(t *trace) { t.parent = span.spanID }), span
}

type SpanImpl struct {
	trace
	spanID    string
	source    string
	component string
	action    string
	log       *zap.Logger
	start     time.Time

	mu       sync.Mutex
	status   string
	entity   string
	recordID string
	metadata map[string]any
	ended    bool
}

func (s *SpanImpl) TraceID() string { return s.trace.id }
func (s *SpanImpl) SpanID() string  { return s.spanID }

func (s *SpanImpl) SetStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *SpanImpl) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metadata == nil {
		s.metadata = make(map[string]any)
	}
	s.metadata[key] = value
}

func (s *SpanImpl) SetEntity(entity, recordID string) {
	s.mu.Lock()
	s.entity, s.recordID = entity, recordID
	s.mu.Unlock()
}

// End is idempotent.
func (s *SpanImpl) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true

	elapsed := time.Since(s.start)
	metrics.SpanDuration.WithLabelValues(s.component, s.action, s.status).Observe(elapsed.Seconds())

	ce := s.log.Check(zap.DebugLevel, "span")
	if ce == nil {
		return
	}
	fields := []zap.Field{
		zap.String("trace_id", s.trace.id),
		zap.String("span_id", s.spanID),
		zap.String("source", s.source),
		zap.String("component", s.component),
		zap.String("action", s.action),
		zap.String("status", s.status),
		zap.Duration("duration", elapsed),
	}
	for _, kv := range [][2]string{
		{"parent_span_id", s.trace.parent},
		{"entity", s.entity},
		{"record_id", s.recordID},
		{"user_id", s.trace.user},
	} {
		if kv[1] != "" {
			fields = append(fields, zap.String(kv[0], kv[1]))
		}
	}
	if len(s.metadata) > 0 {
		fields = append(fields, zap.Any("metadata", s.metadata))
	}
	ce.Write(fields...)
}
