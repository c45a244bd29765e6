// Package httputil writes the wire envelopes shared by the handlers and the
// middleware: resource JSON on success, the error envelope with its status
// mapping on failure, and the rate-limit headers.
package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/ratelimit"
)

type errorBody struct {
	Code    apperr.Code            `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// JSON writes v with the given status. A nil v writes headers only.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Error renders err as the error envelope. Internal causes are logged here,
// once, and never reach the wire.
func Error(w http.ResponseWriter, log *logrus.Entry, err error) {
	e := apperr.From(err)
	status := StatusOf(e.Code)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		JSON(w, status, errorEnvelope{Error: errorBody{Code: e.Code, Message: "internal error"}})
		return
	}
	JSON(w, status, errorEnvelope{Error: errorBody{Code: e.Code, Message: e.Message, Details: e.Details}})
}

// StatusOf maps an error code to its HTTP status. Unknown codes are treated
// as internal.
func StatusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeAuthMissingHeaders, apperr.CodeAuthTimestampInvalid, apperr.CodeAuthInvalidNonce,
		apperr.CodeAuthReplayDetected, apperr.CodeAuthInvalidDID, apperr.CodeAuthAgentNotFound,
		apperr.CodeAuthSignatureInvalid, apperr.CodeAuthVerificationError,
		apperr.CodeAuthInvalidRegistrationSignature:
		return http.StatusUnauthorized
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeRateLimited, apperr.CodeSpam:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Decode parses a JSON request body strictly: unknown fields reject, as does
// trailing garbage.
func Decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(err, apperr.CodeValidation, "invalid request body")
	}
	if dec.More() {
		return apperr.New(apperr.CodeValidation, "request body must be a single JSON document")
	}
	return nil
}

// RateLimitHeaders exposes an admission decision on the response. Reset is
// in epoch seconds; Retry-After is added only on denials.
func RateLimitHeaders(w http.ResponseWriter, st ratelimit.Status) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(st.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(st.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(st.ResetAt/1000, 10))
	if !st.Allowed {
		retry := st.ResetAt/1000 - time.Now().Unix()
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
	}
}
