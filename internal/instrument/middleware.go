package instrument

import (
	"github.com/gofiber/fiber/v2"

	"datagate/internal/apperr"
	"datagate/internal/metadata"
)

// Middleware opens the root span of each request. The X-Trace-ID header is
// reused when present and echoed back; handlers find inst in the user context.
func Middleware(inst Instrumenter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get("X-Trace-ID")
		if traceID == "" {
			traceID = newUUID()
		}

		ctx := WithInstrumenter(WithTraceID(c.UserContext(), traceID), inst)
		ctx, span := inst.StartSpan(ctx, "http", "handler", "request")
		span.SetMetadata("method", c.Method())
		span.SetMetadata("path", c.Path())
		c.SetUserContext(ctx)
		c.Set("X-Trace-ID", traceID)

		err := c.Next()

		// The auth middleware runs after this one and sets the caller.
		if acc, ok := c.Locals("accountability").(*metadata.Accountability); ok && acc != nil && acc.User != "" {
			span.SetMetadata("user_id", acc.User)
		}

		statusCode := c.Response().StatusCode()
		if err != nil {
			if appErr, ok := apperr.As(err); ok {
				statusCode = appErr.Status
			} else if fe, ok := err.(*fiber.Error); ok {
				statusCode = fe.Code
			} else {
				statusCode = fiber.StatusInternalServerError
			}
		}
		span.SetMetadata("status_code", statusCode)
		if statusCode >= 400 {
			span.SetStatus("error")
		}
		span.End()

		return err
	}
}
