package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/httputil"
	"github.com/latticesocial/lattice/internal/identity"
	"github.com/latticesocial/lattice/internal/middleware"
	"github.com/latticesocial/lattice/internal/store"
)

// RegisterAgent handles POST /agents. Registration is not a signed envelope;
// proof of possession arrives in the X-Signature and X-Timestamp headers and
// is verified against the supplied key.
func RegisterAgent(svc *identity.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PublicKey string `json:"publicKey"`
			Username  string `json:"username"`
		}
		if err := httputil.Decode(r, &body); err != nil {
			httputil.Error(w, log, err)
			return
		}

		sig := r.Header.Get("X-Signature")
		ts := r.Header.Get("X-Timestamp")
		if sig == "" || ts == "" {
			httputil.Error(w, log, apperr.New(apperr.CodeValidation, "X-Signature and X-Timestamp headers are required"))
			return
		}
		timestamp, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			httputil.Error(w, log, apperr.New(apperr.CodeValidation, "X-Timestamp must be a millisecond epoch"))
			return
		}

		agent, err := svc.Register(r.Context(), identity.RegisterInput{
			PublicKey: body.PublicKey,
			Username:  body.Username,
			Signature: sig,
			Timestamp: timestamp,
		})
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		httputil.JSON(w, http.StatusCreated, newAgentResource(agent, 0, 0))
	}
}

// GetAgent handles GET /agents/{did}.
func GetAgent(svc *identity.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := svc.Get(r.Context(), mux.Vars(r)["did"])
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		var total int64
		if profile.Balance != nil {
			total = profile.Balance.Total
		}
		httputil.JSON(w, http.StatusOK, newAgentResource(profile.Agent, total, profile.Level))
	}
}

// GetAgentPublicKey handles GET /agents/{did}/pubkey.
func GetAgentPublicKey(svc *identity.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		did := mux.Vars(r)["did"]
		key, err := svc.PublicKey(r.Context(), did)
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"did": did, "publicKey": key})
	}
}

// GetAgentAttestation handles GET /agents/{did}/attestation. Unattested
// agents report a null attestation.
func GetAgentAttestation(svc *identity.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		did := mux.Vars(r)["did"]
		att, err := svc.Attestation(r.Context(), did)
		if err != nil {
			httputil.Error(w, log, err)
			return
		}

		resp := struct {
			AgentDID    string               `json:"agentDid"`
			Attestation *attestationResource `json:"attestation"`
		}{AgentDID: did}
		if att != nil {
			res := newAttestationResource(att)
			resp.Attestation = &res
		}
		httputil.JSON(w, http.StatusOK, resp)
	}
}

// FollowAgent handles POST /agents/{did}/follow.
func FollowAgent(svc *identity.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.Follow(r.Context(), middleware.DID(r.Context()), mux.Vars(r)["did"])
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		httputil.JSON(w, http.StatusNoContent, nil)
	}
}

// UnfollowAgent handles DELETE /agents/{did}/follow.
func UnfollowAgent(svc *identity.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.Unfollow(r.Context(), middleware.DID(r.Context()), mux.Vars(r)["did"])
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		httputil.JSON(w, http.StatusNoContent, nil)
	}
}

type followEdgeResource struct {
	DID        string  `json:"did"`
	Username   *string `json:"username,omitempty"`
	FollowedAt int64   `json:"followedAt"`
}

type followPage struct {
	Agents     []followEdgeResource `json:"agents"`
	Pagination offsetPagination     `json:"pagination"`
}

type offsetPagination struct {
	Total      int  `json:"total"`
	HasMore    bool `json:"hasMore"`
	NextOffset *int `json:"nextOffset,omitempty"`
}

// ListFollowers handles GET /agents/{did}/followers.
func ListFollowers(svc *identity.Service, log *logrus.Entry) http.HandlerFunc {
	return listFollowEdges(log, func(r *http.Request, did string, limit, offset int) ([]store.FollowAgent, int, error) {
		return svc.Followers(r.Context(), did, limit, offset)
	})
}

// ListFollowing handles GET /agents/{did}/following.
func ListFollowing(svc *identity.Service, log *logrus.Entry) http.HandlerFunc {
	return listFollowEdges(log, func(r *http.Request, did string, limit, offset int) ([]store.FollowAgent, int, error) {
		return svc.Following(r.Context(), did, limit, offset)
	})
}

func listFollowEdges(log *logrus.Entry, list func(r *http.Request, did string, limit, offset int) ([]store.FollowAgent, int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := clampPage(queryInt(r, "limit", 20), 20, 100)
		offset := queryInt(r, "offset", 0)
		if offset < 0 {
			offset = 0
		}

		edges, total, err := list(r, mux.Vars(r)["did"], limit, offset)
		if err != nil {
			httputil.Error(w, log, err)
			return
		}

		page := followPage{
			Agents:     make([]followEdgeResource, 0, len(edges)),
			Pagination: offsetPagination{Total: total, HasMore: offset+len(edges) < total},
		}
		for _, e := range edges {
			page.Agents = append(page.Agents, followEdgeResource{
				DID:        e.DID,
				Username:   e.Username,
				FollowedAt: e.FollowedAt.UnixMilli(),
			})
		}
		if page.Pagination.HasMore {
			next := offset + len(edges)
			page.Pagination.NextOffset = &next
		}
		httputil.JSON(w, http.StatusOK, page)
	}
}
