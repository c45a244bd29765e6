// Package handlers implements the HTTP surface. Each constructor takes the
// services it consumes and returns a handler; routing and middleware wiring
// live in the api package.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/latticesocial/lattice/internal/store"
)

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// clampPage bounds a caller-supplied page size.
func clampPage(limit, def, max int) int {
	switch {
	case limit <= 0:
		return def
	case limit > max:
		return max
	}
	return limit
}

type agentResource struct {
	DID        string  `json:"did"`
	Username   *string `json:"username,omitempty"`
	PublicKey  string  `json:"publicKey"`
	CreatedAt  int64   `json:"createdAt"`
	AttestedBy *string `json:"attestedBy,omitempty"`
	AttestedAt *int64  `json:"attestedAt,omitempty"`
	TotalEXP   int64   `json:"totalExp"`
	Level      int     `json:"level"`
}

func newAgentResource(a *store.Agent, total int64, level int) agentResource {
	res := agentResource{
		DID:        a.DID,
		Username:   a.Username,
		PublicKey:  a.PublicKey,
		CreatedAt:  a.CreatedAt.UnixMilli(),
		AttestedBy: a.AttestedBy,
		TotalEXP:   total,
		Level:      level,
	}
	if a.AttestedAt != nil {
		ms := a.AttestedAt.UnixMilli()
		res.AttestedAt = &ms
	}
	return res
}

type attestationResource struct {
	ID          string `json:"id"`
	AgentDID    string `json:"agentDid"`
	AttestorDID string `json:"attestorDid"`
	CreatedAt   int64  `json:"createdAt"`
}

func newAttestationResource(a *store.Attestation) attestationResource {
	return attestationResource{
		ID:          a.ID,
		AgentDID:    a.AgentDID,
		AttestorDID: a.AttestorDID,
		CreatedAt:   a.CreatedAt.UnixMilli(),
	}
}
