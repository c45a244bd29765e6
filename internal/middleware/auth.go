// Package middleware carries the cross-cutting HTTP layers: the envelope
// authenticator and the request instrumentation.
package middleware

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/httputil"
	"github.com/latticesocial/lattice/internal/metrics"
	"github.com/latticesocial/lattice/internal/noncecache"
	"github.com/latticesocial/lattice/internal/store"
	"github.com/latticesocial/lattice/pkg/didkey"
)

// maxBodyBytes caps how much envelope body the authenticator will buffer.
// Post content tops out at 50 KiB, so 1 MiB leaves ample headroom.
const maxBodyBytes = 1 << 20

type ctxKey int

const didContextKey ctxKey = iota

// didHolder is mutable so the authenticator, which runs inside the request
// logger, can surface the caller to it.
type didHolder struct {
	did string
}

// WithDID tags a context with the authenticated caller. If the context
// already carries a holder the value is set in place.
func WithDID(ctx context.Context, did string) context.Context {
	if h, ok := ctx.Value(didContextKey).(*didHolder); ok {
		h.did = did
		return ctx
	}
	return context.WithValue(ctx, didContextKey, &didHolder{did: did})
}

// DID returns the authenticated caller, or "" on unauthenticated requests.
func DID(ctx context.Context) string {
	if h, ok := ctx.Value(didContextKey).(*didHolder); ok {
		return h.did
	}
	return ""
}

var noncePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,64}$`)

// validNonce accepts a canonical UUIDv4 or 16-64 URL-safe characters.
func validNonce(nonce string) bool {
	if len(nonce) == 36 {
		if u, err := uuid.Parse(nonce); err == nil && u.Version() == 4 && u.Variant() == uuid.RFC4122 {
			return true
		}
	}
	return noncePattern.MatchString(nonce)
}

// AgentResolver is the registry lookup step of the pipeline.
type AgentResolver interface {
	GetAgent(ctx context.Context, did string) (*store.Agent, error)
}

// Authenticator verifies signed request envelopes. The pipeline is ordered
// cheapest-first and fails fast: headers, timestamp, nonce shape, replay,
// DID shape, registry, signature.
type Authenticator struct {
	agents  AgentResolver
	nonces  noncecache.Cache
	metrics *metrics.Metrics
	log     *logrus.Entry
	now     func() time.Time
}

func NewAuthenticator(agents AgentResolver, nonces noncecache.Cache, m *metrics.Metrics, log *logrus.Entry) *Authenticator {
	return &Authenticator{agents: agents, nonces: nonces, metrics: m, log: log, now: time.Now}
}

// Require rejects the request on the first pipeline failure.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		did, err := a.verify(w, r)
		if err != nil {
			a.reject(r, err)
			httputil.Error(w, a.log, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithDID(r.Context(), did)))
	})
}

// Optional runs the same pipeline but proceeds unauthenticated on any
// failure. Read endpoints that personalise for a viewer use it.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-DID") == "" {
			next.ServeHTTP(w, r)
			return
		}
		did, err := a.verify(w, r)
		if err != nil {
			a.reject(r, err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithDID(r.Context(), did)))
	})
}

func (a *Authenticator) reject(r *http.Request, err error) {
	code := apperr.CodeOf(err)
	a.metrics.RecordAuthFailure(string(code))
	a.log.WithFields(logrus.Fields{
		"code":   code,
		"method": r.Method,
		"path":   r.URL.Path,
	}).Warn("envelope rejected")
}

func (a *Authenticator) verify(w http.ResponseWriter, r *http.Request) (string, error) {
	did := r.Header.Get("X-DID")
	sig := r.Header.Get("X-Signature")
	ts := r.Header.Get("X-Timestamp")
	nonce := r.Header.Get("X-Nonce")
	if did == "" || sig == "" || ts == "" || nonce == "" {
		return "", apperr.New(apperr.CodeAuthMissingHeaders, "X-DID, X-Signature, X-Timestamp and X-Nonce are required")
	}

	timestamp, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", apperr.New(apperr.CodeAuthTimestampInvalid, "X-Timestamp must be a millisecond epoch")
	}
	if drift := a.now().UnixMilli() - timestamp; drift > didkey.TimestampWindow || drift < -didkey.TimestampWindow {
		return "", apperr.New(apperr.CodeAuthTimestampInvalid, "timestamp outside the accepted window")
	}

	if !validNonce(nonce) {
		return "", apperr.New(apperr.CodeAuthInvalidNonce, "nonce must be a UUIDv4 or 16-64 URL-safe characters")
	}
	fresh, err := a.nonces.Register(r.Context(), did, nonce)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeAuthVerificationError, "nonce cache unavailable")
	}
	if !fresh {
		return "", apperr.New(apperr.CodeAuthReplayDetected, "nonce already used")
	}

	if _, err := didkey.Decode(did); err != nil {
		return "", apperr.Wrap(err, apperr.CodeAuthInvalidDID, "malformed DID")
	}

	agent, err := a.agents.GetAgent(r.Context(), did)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeAuthVerificationError, "agent lookup failed")
	}
	if agent == nil {
		return "", apperr.New(apperr.CodeAuthAgentNotFound, "agent is not registered")
	}
	// The stored key is authoritative; the DID decode above only proves the
	// identifier is well-formed.
	pub, err := didkey.PublicKeyFromBase64(agent.PublicKey)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeAuthVerificationError, "stored public key unreadable")
	}

	body, err := bufferBody(w, r)
	if err != nil {
		return "", err
	}

	rawSig, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return "", apperr.New(apperr.CodeAuthSignatureInvalid, "signature is not valid base64")
	}
	if len(rawSig) != ed25519.SignatureSize {
		return "", apperr.New(apperr.CodeAuthSignatureInvalid, "signature must be 64 bytes")
	}

	message := didkey.CanonicalRequest(r.Method, r.URL.RequestURI(), timestamp, nonce, body)
	ok, err := didkey.Verify(pub, message, rawSig)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeAuthVerificationError, "signature verification failed")
	}
	if !ok {
		return "", apperr.New(apperr.CodeAuthSignatureInvalid, "signature does not match the canonical request")
	}
	return did, nil
}

// bufferBody reads the raw envelope bytes and hands the handler an identical
// replacement reader. Signatures are computed over these exact bytes; the
// parsed form is never re-serialised.
func bufferBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidation, "request body unreadable")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
