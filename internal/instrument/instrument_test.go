package instrument

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datagate/internal/apperr"
)

type recorder struct {
	mu    sync.Mutex
	spans []*SpanImpl
}

func (r *recorder) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	ctx, span := NewInstrumenter().StartSpan(ctx, source, component, action)
	r.mu.Lock()
	r.spans = append(r.spans, span.(*SpanImpl))
	r.mu.Unlock()
	return ctx, span
}

func TestStartSpan_ParentAndUser(t *testing.T) {
	inst := NewInstrumenter()
	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), "u1")

	ctx, root := inst.StartSpan(ctx, "http", "handler", "request")
	_, child := inst.StartSpan(ctx, "walker", "walker", "outbound")

	c := child.(*SpanImpl)
	assert.Equal(t, "trace-1", c.TraceID())
	assert.Equal(t, root.SpanID(), c.trace.parent)
	assert.Equal(t, "u1", c.trace.user)

	child.End()
	child.End()
	assert.True(t, c.ended)
}

func TestGetInstrumenter_DefaultsToNoop(t *testing.T) {
	_, span := Start(context.Background(), "walker", "walker", "inbound")
	assert.IsType(t, &NoopSpan{}, span)
	assert.Empty(t, span.TraceID())
}

func TestMiddleware(t *testing.T) {
	rec := &recorder{}
	app := fiber.New()
	app.Use(Middleware(rec))
	app.Get("/ok", func(c *fiber.Ctx) error {
		_, span := Start(c.UserContext(), "api", "handler", "ok")
		span.End()
		return c.SendString(GetTraceID(c.UserContext()))
	})
	app.Get("/denied", func(c *fiber.Ctx) error {
		return apperr.ForbiddenError("no")
	})

	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set("X-Trace-ID", "abc")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.Header.Get("X-Trace-ID"))

	require.Len(t, rec.spans, 2)
	assert.Equal(t, "abc", rec.spans[1].trace.id)
	assert.Equal(t, rec.spans[0].spanID, rec.spans[1].trace.parent)
	assert.Equal(t, "ok", rec.spans[0].status)

	_, err = app.Test(httptest.NewRequest("GET", "/denied", nil))
	require.NoError(t, err)
	require.Len(t, rec.spans, 3)
	assert.Equal(t, "error", rec.spans[2].status)
	assert.Equal(t, 403, rec.spans[2].metadata["status_code"])
	assert.NotEmpty(t, rec.spans[2].trace.id)
}
