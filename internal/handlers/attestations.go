package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/httputil"
	"github.com/latticesocial/lattice/internal/identity"
	"github.com/latticesocial/lattice/internal/middleware"
)

// CreateAttestation handles POST /attestations. The envelope signature also
// serves as the attestation signature kept on record.
func CreateAttestation(svc *identity.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AgentDID string `json:"agentDid"`
		}
		if err := httputil.Decode(r, &body); err != nil {
			httputil.Error(w, log, err)
			return
		}

		att, reward, err := svc.Attest(r.Context(), middleware.DID(r.Context()), body.AgentDID, r.Header.Get("X-Signature"))
		if err != nil {
			httputil.Error(w, log, err)
			return
		}

		httputil.JSON(w, http.StatusCreated, struct {
			Attestation attestationResource `json:"attestation"`
			Reward      int64               `json:"reward"`
		}{newAttestationResource(att), reward})
	}
}
