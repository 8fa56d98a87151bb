package middleware

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HeaderCorrelationID is the header a caller may supply to correlate a
// request across services; the response always echoes it back.
const HeaderCorrelationID = "X-Correlation-ID"

type correlationKey struct{}

// CorrelationID extracts the request's correlation identifier from a
// context.  It returns "-" when the context carries none, so log lines
// stay grep-friendly.
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}

// WithCorrelationID returns a child context carrying the identifier.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// Correlation accepts an incoming X-Correlation-ID (or generates one),
// threads it through the request context for engine logging, echoes it
// on the response, and logs every request with its duration and status.
func Correlation() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			corrID := req.Header.Get(HeaderCorrelationID)
			if corrID == "" {
				corrID = uuid.NewString()
			}
			ctx := WithCorrelationID(req.Context(), corrID)
			c.SetRequest(req.WithContext(ctx))
			c.Response().Header().Set(HeaderCorrelationID, corrID)

			start := time.Now()
			log.Printf("[%s] started %s %s", corrID, req.Method, req.URL.Path)
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			log.Printf("[%s] completed %s %s status=%d duration=%s",
				corrID, req.Method, req.URL.Path, status, time.Since(start).Round(time.Microsecond))
			return err
		}
	}
}
