package identity

import (
	"context"
	"encoding/base64"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/events"
	"github.com/latticesocial/lattice/internal/ids"
	"github.com/latticesocial/lattice/internal/metrics"
	"github.com/latticesocial/lattice/internal/store"
	"github.com/latticesocial/lattice/pkg/didkey"
)

type fakeStore struct {
	agents       map[string]*store.Agent
	balances     map[string]*store.EXPBalance
	follows      map[[2]string]time.Time
	attestations map[string]*store.Attestation
	issuedBy     map[string]int
	deltas       []*store.EXPDelta
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agents:       make(map[string]*store.Agent),
		balances:     make(map[string]*store.EXPBalance),
		follows:      make(map[[2]string]time.Time),
		attestations: make(map[string]*store.Attestation),
		issuedBy:     make(map[string]int),
	}
}

func (f *fakeStore) addAgent(did string, total int64) *store.Agent {
	a := &store.Agent{DID: did, PublicKey: "cGs=", CreatedAt: time.UnixMilli(1_700_000_000_000)}
	f.agents[did] = a
	f.balances[did] = &store.EXPBalance{DID: did, Total: total}
	return a
}

func (f *fakeStore) CreateAgent(_ context.Context, a *store.Agent) error {
	if _, ok := f.agents[a.DID]; ok {
		return apperr.New(apperr.CodeConflict, "did or username already registered")
	}
	f.agents[a.DID] = a
	f.balances[a.DID] = &store.EXPBalance{DID: a.DID}
	return nil
}

func (f *fakeStore) GetAgent(_ context.Context, did string) (*store.Agent, error) {
	return f.agents[did], nil
}

func (f *fakeStore) UsernameTaken(_ context.Context, username string) (bool, error) {
	for _, a := range f.agents {
		if a.Username != nil && *a.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetBalance(_ context.Context, did string) (*store.EXPBalance, error) {
	return f.balances[did], nil
}

func (f *fakeStore) CreateFollow(_ context.Context, follower, followed string, at time.Time) (bool, error) {
	if _, ok := f.agents[followed]; !ok {
		return false, apperr.New(apperr.CodeNotFound, "agent not found")
	}
	key := [2]string{follower, followed}
	if _, ok := f.follows[key]; ok {
		return false, nil
	}
	f.follows[key] = at
	return true, nil
}

func (f *fakeStore) DeleteFollow(_ context.Context, follower, followed string) (bool, error) {
	key := [2]string{follower, followed}
	if _, ok := f.follows[key]; !ok {
		return false, nil
	}
	delete(f.follows, key)
	return true, nil
}

func (f *fakeStore) ListFollowers(_ context.Context, did string, _, _ int) ([]store.FollowAgent, int, error) {
	var out []store.FollowAgent
	for key, at := range f.follows {
		if key[1] == did {
			out = append(out, store.FollowAgent{DID: key[0], FollowedAt: at})
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) ListFollowing(_ context.Context, did string, _, _ int) ([]store.FollowAgent, int, error) {
	var out []store.FollowAgent
	for key, at := range f.follows {
		if key[0] == did {
			out = append(out, store.FollowAgent{DID: key[1], FollowedAt: at})
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) GetAttestation(_ context.Context, agentDID string) (*store.Attestation, error) {
	return f.attestations[agentDID], nil
}

func (f *fakeStore) CountAttestationsBy(_ context.Context, attestorDID string, _ time.Time) (int, error) {
	return f.issuedBy[attestorDID], nil
}

func (f *fakeStore) AttestAgent(_ context.Context, att *store.Attestation, reward *store.EXPDelta) error {
	if _, ok := f.attestations[att.AgentDID]; ok {
		return apperr.New(apperr.CodeConflict, "agent is already attested")
	}
	f.attestations[att.AgentDID] = att
	agent := f.agents[att.AgentDID]
	agent.AttestedBy = &att.AttestorDID
	agent.AttestedAt = &att.CreatedAt
	f.issuedBy[att.AttestorDID]++
	f.balances[att.AgentDID].Total += reward.Amount
	f.deltas = append(f.deltas, reward)
	return nil
}

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func newTestService(fs *fakeStore, now time.Time) *Service {
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(fs, ids.NewSequence(now), events.NewBus(m, testLog()), m, testLog())
	svc.now = func() time.Time { return now }
	return svc
}

func signedRegistration(t *testing.T, now time.Time, username string) (RegisterInput, string) {
	t.Helper()
	pair, err := didkey.GenerateKeyPair()
	require.NoError(t, err)

	pkb64 := base64.StdEncoding.EncodeToString(pair.PublicKey)
	ts := now.UnixMilli()
	sig, err := didkey.Sign(pair.PrivateKey, didkey.RegistrationChallenge(pair.DID, ts, pkb64))
	require.NoError(t, err)

	return RegisterInput{
		PublicKey: pkb64,
		Username:  username,
		Signature: base64.StdEncoding.EncodeToString(sig),
		Timestamp: ts,
	}, pair.DID
}

func TestRegister(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	fs := newFakeStore()
	svc := newTestService(fs, now)

	in, wantDID := signedRegistration(t, now, "orbital_relay")
	agent, err := svc.Register(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, wantDID, agent.DID)
	require.NotNil(t, agent.Username)
	assert.Equal(t, "orbital_relay", *agent.Username)
	require.NotNil(t, fs.balances[wantDID], "registration seeds a zero balance")
	assert.Zero(t, fs.balances[wantDID].Total)
}

func TestRegisterTimestampWindow(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	svc := newTestService(newFakeStore(), now)

	// Exactly at the window edge passes; one ms past it fails.
	in, _ := signedRegistration(t, now.Add(-5*time.Minute), "")
	_, err := svc.Register(context.Background(), in)
	assert.NoError(t, err)

	in2, _ := signedRegistration(t, now.Add(-5*time.Minute-time.Millisecond), "")
	_, err = svc.Register(context.Background(), in2)
	assert.Equal(t, apperr.CodeAuthTimestampInvalid, apperr.CodeOf(err))
}

func TestRegisterRejectsBadSignature(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	svc := newTestService(newFakeStore(), now)

	in, _ := signedRegistration(t, now, "")
	in.Timestamp++ // signature no longer covers the challenge
	_, err := svc.Register(context.Background(), in)
	assert.Equal(t, apperr.CodeAuthInvalidRegistrationSignature, apperr.CodeOf(err))

	in2, _ := signedRegistration(t, now, "")
	in2.Signature = "%%%not-base64%%%"
	_, err = svc.Register(context.Background(), in2)
	assert.Equal(t, apperr.CodeAuthInvalidRegistrationSignature, apperr.CodeOf(err))
}

func TestRegisterRejectsBadPublicKey(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	svc := newTestService(newFakeStore(), now)

	in, _ := signedRegistration(t, now, "")
	in.PublicKey = base64.StdEncoding.EncodeToString([]byte("short"))
	_, err := svc.Register(context.Background(), in)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestRegisterDuplicateDID(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	svc := newTestService(newFakeStore(), now)

	in, _ := signedRegistration(t, now, "")
	_, err := svc.Register(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), in)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestRegisterUsernameTaken(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	svc := newTestService(newFakeStore(), now)

	first, _ := signedRegistration(t, now, "relay_nine")
	_, err := svc.Register(context.Background(), first)
	require.NoError(t, err)

	second, _ := signedRegistration(t, now, "relay_nine")
	_, err = svc.Register(context.Background(), second)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestValidateUsername(t *testing.T) {
	cases := []struct {
		username string
		ok       bool
	}{
		{"abc", true},
		{"ab", false},
		{"relay_nine", true},
		{"has space", false},
		{"has-dash", false},
		{"didsomething", false},
		{"DIDsomething", false},
		{"jailbreak_pro", false}, // injection pattern inside a legal shape
		{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},   // 30
		{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false}, // 31
	}
	for _, tc := range cases {
		err := ValidateUsername(tc.username)
		if tc.ok {
			assert.NoError(t, err, tc.username)
		} else {
			assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err), tc.username)
		}
	}
}

func TestGetProfile(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	fs := newFakeStore()
	fs.addAgent("did:key:zTarget", 120)
	svc := newTestService(fs, now)

	p, err := svc.Get(context.Background(), "did:key:zTarget")
	require.NoError(t, err)
	assert.Equal(t, int64(120), p.Balance.Total)
	assert.Equal(t, 20, p.Level)

	_, err = svc.Get(context.Background(), "did:key:zNobody")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestFollowRules(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	fs := newFakeStore()
	fs.addAgent("did:key:zA", 0)
	fs.addAgent("did:key:zB", 0)
	svc := newTestService(fs, now)
	ctx := context.Background()

	err := svc.Follow(ctx, "did:key:zA", "did:key:zA")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	err = svc.Follow(ctx, "did:key:zA", "did:key:zMissing")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	require.NoError(t, svc.Follow(ctx, "did:key:zA", "did:key:zB"))
	require.NoError(t, svc.Follow(ctx, "did:key:zA", "did:key:zB"), "re-follow is a no-op")

	followers, total, err := svc.Followers(ctx, "did:key:zB", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "did:key:zA", followers[0].DID)

	require.NoError(t, svc.Unfollow(ctx, "did:key:zA", "did:key:zB"))
	require.NoError(t, svc.Unfollow(ctx, "did:key:zA", "did:key:zB"), "re-unfollow is a no-op")

	_, total, err = svc.Followers(ctx, "did:key:zB", 20, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAttestRewardTiers(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	// Totals chosen to land a level in each reward tier:
	// level(1)=3, level(3)=6, level(12)=11.
	cases := []struct {
		name          string
		attestorTotal int64
		wantReward    int64
	}{
		{"tier 2-5 pays 25", 1, 25},
		{"tier 6-10 pays 50", 3, 50},
		{"tier 11+ pays 100", 12, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := newFakeStore()
			fs.addAgent("did:key:zAttestor", tc.attestorTotal)
			fs.addAgent("did:key:zTarget", 0)
			svc := newTestService(fs, now)

			att, reward, err := svc.Attest(context.Background(), "did:key:zAttestor", "did:key:zTarget", "c2ln")
			require.NoError(t, err)
			assert.Equal(t, tc.wantReward, reward)
			assert.Equal(t, "did:key:zTarget", att.AgentDID)
			assert.Equal(t, tc.wantReward, fs.balances["did:key:zTarget"].Total)
			require.Len(t, fs.deltas, 1)
			assert.Equal(t, "attestation", fs.deltas[0].Reason)
		})
	}
}

func TestAttestIsOneShot(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	fs := newFakeStore()
	fs.addAgent("did:key:zAttestor", 1000)
	fs.addAgent("did:key:zOther", 1000)
	fs.addAgent("did:key:zTarget", 0)
	svc := newTestService(fs, now)

	_, _, err := svc.Attest(context.Background(), "did:key:zAttestor", "did:key:zTarget", "c2ln")
	require.NoError(t, err)

	_, _, err = svc.Attest(context.Background(), "did:key:zOther", "did:key:zTarget", "c2ln")
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestAttestPreconditions(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	fs := newFakeStore()
	fs.addAgent("did:key:zLow", 0) // level 0
	fs.addAgent("did:key:zHigh", 1000)
	fs.addAgent("did:key:zTarget", 0)
	svc := newTestService(fs, now)
	ctx := context.Background()

	_, _, err := svc.Attest(ctx, "did:key:zHigh", "did:key:zHigh", "c2ln")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, _, err = svc.Attest(ctx, "did:key:zHigh", "did:key:zMissing", "c2ln")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	_, _, err = svc.Attest(ctx, "did:key:zLow", "did:key:zTarget", "c2ln")
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestAttestQuota(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	fs := newFakeStore()
	fs.addAgent("did:key:zAttestor", 1000)
	fs.issuedBy["did:key:zAttestor"] = attestorQuota
	fs.addAgent("did:key:zTarget", 0)
	svc := newTestService(fs, now)

	_, _, err := svc.Attest(context.Background(), "did:key:zAttestor", "did:key:zTarget", "c2ln")
	assert.Equal(t, apperr.CodeRateLimited, apperr.CodeOf(err))
}
