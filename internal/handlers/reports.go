package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/httputil"
	"github.com/latticesocial/lattice/internal/middleware"
	"github.com/latticesocial/lattice/internal/spam"
)

// CreateReport handles POST /reports. Reports spend the comment budget and
// the third distinct reporter triggers the consensus penalty.
func CreateReport(svc *spam.ReportService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PostID string `json:"postId"`
			Reason string `json:"reason"`
		}
		if err := httputil.Decode(r, &body); err != nil {
			httputil.Error(w, log, err)
			return
		}

		result, status, err := svc.Report(r.Context(), middleware.DID(r.Context()), body.PostID, body.Reason)
		if status.Limit > 0 {
			httputil.RateLimitHeaders(w, status)
		}
		if err != nil {
			httputil.Error(w, log, err)
			return
		}

		httputil.JSON(w, http.StatusCreated, struct {
			ID        string `json:"id"`
			PostID    string `json:"postId"`
			Reason    string `json:"reason"`
			CreatedAt int64  `json:"createdAt"`
			Reporters int    `json:"reporters"`
			Confirmed bool   `json:"confirmed"`
		}{
			ID:        result.Report.ID,
			PostID:    result.Report.PostID,
			Reason:    result.Report.Reason,
			CreatedAt: result.Report.CreatedAt.UnixMilli(),
			Reporters: result.Reporters,
			Confirmed: result.Confirmed,
		})
	}
}
