package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/exp"
	"github.com/latticesocial/lattice/internal/httputil"
)

// GetBalance handles GET /exp/{did}: the materialised balance plus the
// derived level.
func GetBalance(svc *exp.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		did := mux.Vars(r)["did"]
		balance, err := svc.Balance(r.Context(), did)
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		if balance == nil {
			httputil.Error(w, log, apperr.New(apperr.CodeNotFound, "agent not found"))
			return
		}

		httputil.JSON(w, http.StatusOK, struct {
			DID          string `json:"did"`
			Total        int64  `json:"total"`
			PostKarma    int64  `json:"postKarma"`
			CommentKarma int64  `json:"commentKarma"`
			Level        int    `json:"level"`
			UpdatedAt    int64  `json:"updatedAt"`
		}{
			DID:          balance.DID,
			Total:        balance.Total,
			PostKarma:    balance.PostKarma,
			CommentKarma: balance.CommentKarma,
			Level:        exp.Level(balance.Total),
			UpdatedAt:    balance.UpdatedAt.UnixMilli(),
		})
	}
}

type deltaResource struct {
	ID        string  `json:"id"`
	Amount    int64   `json:"amount"`
	Reason    string  `json:"reason"`
	SourceID  *string `json:"sourceId,omitempty"`
	CreatedAt int64   `json:"createdAt"`
}

type deltaPage struct {
	Deltas     []deltaResource `json:"deltas"`
	Pagination struct {
		Total      int     `json:"total"`
		HasMore    bool    `json:"hasMore"`
		NextCursor *string `json:"nextCursor,omitempty"`
	} `json:"pagination"`
}

// GetHistory handles GET /exp/{did}/history, paging the delta log
// newest-first by delta ID.
func GetHistory(svc *exp.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		did := mux.Vars(r)["did"]
		limit := clampPage(queryInt(r, "limit", 20), 20, 100)

		// One extra row detects the next page.
		deltas, total, err := svc.History(r.Context(), did, r.URL.Query().Get("cursor"), limit+1)
		if err != nil {
			httputil.Error(w, log, err)
			return
		}

		page := deltaPage{Deltas: make([]deltaResource, 0, limit)}
		page.Pagination.Total = total
		if len(deltas) > limit {
			deltas = deltas[:limit]
			page.Pagination.HasMore = true
			cursor := deltas[len(deltas)-1].ID
			page.Pagination.NextCursor = &cursor
		}
		for _, d := range deltas {
			page.Deltas = append(page.Deltas, deltaResource{
				ID:        d.ID,
				Amount:    d.Amount,
				Reason:    d.Reason,
				SourceID:  d.SourceID,
				CreatedAt: d.CreatedAt.UnixMilli(),
			})
		}
		httputil.JSON(w, http.StatusOK, page)
	}
}
