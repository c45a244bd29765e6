package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/httputil"
)

// Pinger is the liveness probe the health endpoint runs.
type Pinger interface {
	Health(ctx context.Context) error
}

// Health handles GET /health. A failing database ping degrades to 503.
func Health(db Pinger, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		if err := db.Health(ctx); err != nil {
			log.WithError(err).Warn("health check failed")
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		httputil.JSON(w, code, map[string]interface{}{
			"status": status,
			"time":   time.Now().UnixMilli(),
		})
	}
}
