package identity

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/events"
	"github.com/latticesocial/lattice/internal/exp"
	"github.com/latticesocial/lattice/internal/store"
)

// Attest records a one-shot vouching of target by attestor and grants the
// tiered reward. Preconditions, in order: not self, target registered and
// unattested, attestor level >= 2, attestor under the 30-day quota.
func (s *Service) Attest(ctx context.Context, attestorDID, targetDID, signature string) (*store.Attestation, int64, error) {
	if attestorDID == targetDID {
		return nil, 0, apperr.New(apperr.CodeValidation, "cannot attest yourself")
	}

	target, err := s.store.GetAgent(ctx, targetDID)
	if err != nil {
		return nil, 0, err
	}
	if target == nil {
		return nil, 0, apperr.New(apperr.CodeNotFound, "agent not found")
	}
	if target.AttestedBy != nil {
		return nil, 0, apperr.New(apperr.CodeConflict, "agent is already attested")
	}

	balance, err := s.store.GetBalance(ctx, attestorDID)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if balance != nil {
		total = balance.Total
	}
	level := exp.Level(total)
	if level < exp.MinAttestorLevel {
		return nil, 0, apperr.Newf(apperr.CodeForbidden, "level %d is below the attestor minimum", level)
	}

	issued, err := s.store.CountAttestationsBy(ctx, attestorDID, s.now().Add(-attestorQuotaWindow))
	if err != nil {
		return nil, 0, err
	}
	if issued >= attestorQuota {
		return nil, 0, apperr.New(apperr.CodeRateLimited, "attestation quota exhausted").
			WithDetail("limit", attestorQuota).
			WithDetail("windowDays", 30)
	}

	now := s.now()
	reward := exp.AttestationReward(level)
	att := &store.Attestation{
		ID:          s.ids.NewID(),
		AgentDID:    targetDID,
		AttestorDID: attestorDID,
		Signature:   signature,
		CreatedAt:   now,
	}
	delta := &store.EXPDelta{
		ID:        s.ids.NewID(),
		AgentDID:  targetDID,
		Amount:    reward,
		Reason:    exp.ReasonAttestation,
		SourceID:  &att.ID,
		CreatedAt: now,
	}
	if err := s.store.AttestAgent(ctx, att, delta); err != nil {
		return nil, 0, err
	}

	s.metrics.RecordEXPDelta(exp.ReasonAttestation)
	s.bus.Publish(events.TypeAgentAttested, map[string]interface{}{
		"agentDid":    targetDID,
		"attestorDid": attestorDID,
		"reward":      reward,
	})
	s.log.WithFields(logrus.Fields{
		"agent":    targetDID,
		"attestor": attestorDID,
		"reward":   reward,
	}).Info("agent attested")
	return att, reward, nil
}
