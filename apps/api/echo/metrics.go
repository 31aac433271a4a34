package echoapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	metricsvc "github.com/edapp/edapp/services/metrics"
)

// metricsMiddleware counts and times requests by route.
func metricsMiddleware(m *metricsvc.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}

			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			code := strconv.Itoa(ctx.Response().Status)
			m.RequestsTotal.WithLabelValues(method, route, code).Inc()
			m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
