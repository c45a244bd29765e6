// Package identity owns the agent lifecycle: registration with
// proof-of-possession, lookups, the follow graph and attestations.
package identity

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/events"
	"github.com/latticesocial/lattice/internal/exp"
	"github.com/latticesocial/lattice/internal/ids"
	"github.com/latticesocial/lattice/internal/metrics"
	"github.com/latticesocial/lattice/internal/spam"
	"github.com/latticesocial/lattice/internal/store"
	"github.com/latticesocial/lattice/pkg/didkey"
)

// Store is the slice of the store the identity service consumes.
type Store interface {
	CreateAgent(ctx context.Context, a *store.Agent) error
	GetAgent(ctx context.Context, did string) (*store.Agent, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	GetBalance(ctx context.Context, did string) (*store.EXPBalance, error)
	CreateFollow(ctx context.Context, follower, followed string, at time.Time) (bool, error)
	DeleteFollow(ctx context.Context, follower, followed string) (bool, error)
	ListFollowers(ctx context.Context, did string, limit, offset int) ([]store.FollowAgent, int, error)
	ListFollowing(ctx context.Context, did string, limit, offset int) ([]store.FollowAgent, int, error)
	GetAttestation(ctx context.Context, agentDID string) (*store.Attestation, error)
	CountAttestationsBy(ctx context.Context, attestorDID string, since time.Time) (int, error)
	AttestAgent(ctx context.Context, att *store.Attestation, reward *store.EXPDelta) error
}

// Attestor issuance quota: at most 5 attestations per rolling 30 days.
const (
	attestorQuota       = 5
	attestorQuotaWindow = 30 * 24 * time.Hour
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

// Service implements the identity operations.
type Service struct {
	store   Store
	ids     ids.Generator
	bus     *events.Bus
	metrics *metrics.Metrics
	log     *logrus.Entry
	now     func() time.Time
}

// NewService builds the identity service.
func NewService(s Store, gen ids.Generator, bus *events.Bus, m *metrics.Metrics, log *logrus.Entry) *Service {
	return &Service{store: s, ids: gen, bus: bus, metrics: m, log: log, now: time.Now}
}

// RegisterInput is the registration request after HTTP decoding: the body
// fields plus the two headers registration uses instead of the signed
// envelope.
type RegisterInput struct {
	PublicKey string // base64, 32 bytes
	Username  string // optional
	Signature string // base64, over the registration challenge
	Timestamp int64  // ms epoch, from X-Timestamp
}

// Register binds a key to a DID exactly once. The DID is derived from the
// public key; the challenge REGISTER:{did}:{ts}:{publicKeyBase64} must
// verify against that key.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*store.Agent, error) {
	drift := s.now().UnixMilli() - in.Timestamp
	if drift < 0 {
		drift = -drift
	}
	if drift > didkey.TimestampWindow {
		return nil, apperr.New(apperr.CodeAuthTimestampInvalid, "registration timestamp outside the allowed window")
	}

	pub, err := didkey.PublicKeyFromBase64(in.PublicKey)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidation, "invalid public key")
	}
	did, err := didkey.Encode(pub)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidation, "invalid public key")
	}

	var username *string
	if in.Username != "" {
		if err := ValidateUsername(in.Username); err != nil {
			return nil, err
		}
		taken, err := s.store.UsernameTaken(ctx, in.Username)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.New(apperr.CodeConflict, "username already taken")
		}
		username = &in.Username
	}

	sig, err := base64.StdEncoding.DecodeString(in.Signature)
	if err != nil {
		return nil, apperr.New(apperr.CodeAuthInvalidRegistrationSignature, "registration signature is not valid base64")
	}
	challenge := didkey.RegistrationChallenge(did, in.Timestamp, in.PublicKey)
	ok, err := didkey.Verify(pub, challenge, sig)
	if err != nil || !ok {
		return nil, apperr.New(apperr.CodeAuthInvalidRegistrationSignature, "registration signature does not verify")
	}

	agent := &store.Agent{
		DID:       did,
		Username:  username,
		PublicKey: in.PublicKey,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}

	s.bus.Publish(events.TypeAgentRegistered, map[string]interface{}{
		"did":      did,
		"username": in.Username,
	})
	s.log.WithField("did", did).Info("agent registered")
	return agent, nil
}

// ValidateUsername enforces the username contract: 3-30 word characters,
// not claiming the DID namespace, and free of injection patterns.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return apperr.New(apperr.CodeValidation, "username must be 3-30 characters of letters, digits or underscore")
	}
	if strings.HasPrefix(strings.ToLower(username), "did") {
		return apperr.New(apperr.CodeValidation, "username must not start with 'did'")
	}
	if spam.ContainsInjection(username) {
		return apperr.New(apperr.CodeValidation, "username contains a disallowed pattern")
	}
	return nil
}

// Profile is an agent joined with its ledger state.
type Profile struct {
	Agent   *store.Agent
	Balance *store.EXPBalance
	Level   int
}

// Get returns an agent with its balance and level.
func (s *Service) Get(ctx context.Context, did string) (*Profile, error) {
	agent, err := s.store.GetAgent(ctx, did)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, apperr.New(apperr.CodeNotFound, "agent not found")
	}
	balance, err := s.store.GetBalance(ctx, did)
	if err != nil {
		return nil, err
	}
	var total int64
	if balance != nil {
		total = balance.Total
	}
	return &Profile{Agent: agent, Balance: balance, Level: exp.Level(total)}, nil
}

// PublicKey returns the stored base64 key for a DID.
func (s *Service) PublicKey(ctx context.Context, did string) (string, error) {
	agent, err := s.store.GetAgent(ctx, did)
	if err != nil {
		return "", err
	}
	if agent == nil {
		return "", apperr.New(apperr.CodeNotFound, "agent not found")
	}
	return agent.PublicKey, nil
}

// Attestation returns the attestation recorded for an agent, or nil when
// the agent exists but is unattested.
func (s *Service) Attestation(ctx context.Context, did string) (*store.Attestation, error) {
	agent, err := s.store.GetAgent(ctx, did)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, apperr.New(apperr.CodeNotFound, "agent not found")
	}
	return s.store.GetAttestation(ctx, did)
}
