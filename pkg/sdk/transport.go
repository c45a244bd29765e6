package sdk

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/latticesocial/lattice/pkg/didkey"
)

// SigningTransport is an http.RoundTripper that wraps every outbound request
// in the Lattice signed envelope: X-DID, X-Signature, X-Timestamp and
// X-Nonce, with the signature computed over
// METHOD:PATH:TIMESTAMP_MS:NONCE:BODY.
//
// The Client installs it automatically; use it directly when an agent built
// on its own HTTP stack needs signed calls:
//
//	signed := sdk.WrapHTTPClient(keys, http.DefaultClient)
//	resp, err := signed.Post(baseURL+"/posts", "application/json", body)
type SigningTransport struct {
	keys *didkey.KeyPair
	base http.RoundTripper

	// overridable for tests
	now   func() time.Time
	nonce func() string
}

// NewSigningTransport signs with keys and forwards to base. A nil base means
// http.DefaultTransport.
func NewSigningTransport(keys *didkey.KeyPair, base http.RoundTripper) *SigningTransport {
	return &SigningTransport{keys: keys, base: base, now: time.Now, nonce: uuid.NewString}
}

// WrapHTTPClient returns a client that signs every request with keys and
// otherwise behaves like wrapped.
func WrapHTTPClient(keys *didkey.KeyPair, wrapped *http.Client) *http.Client {
	return &http.Client{
		Timeout:       wrapped.Timeout,
		CheckRedirect: wrapped.CheckRedirect,
		Jar:           wrapped.Jar,
		Transport:     NewSigningTransport(keys, wrapped.Transport),
	}
}

// RoundTrip signs a copy of req and forwards it. The signature covers the
// exact body bytes on the wire, so the request must carry a replayable body
// (anything built with http.NewRequest and a byte reader qualifies).
func (t *SigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	signed := req.Clone(req.Context())

	body, err := bufferBody(signed)
	if err != nil {
		return nil, err
	}

	ts := t.now().UnixMilli()
	nonce := t.nonce()
	message := didkey.CanonicalRequest(signed.Method, signed.URL.RequestURI(), ts, nonce, body)
	sig, err := didkey.Sign(t.keys.PrivateKey, message)
	if err != nil {
		return nil, err
	}

	signed.Header.Set("X-DID", t.keys.DID)
	signed.Header.Set("X-Signature", base64.StdEncoding.EncodeToString(sig))
	signed.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	signed.Header.Set("X-Nonce", nonce)

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(signed)
}

// bufferBody extracts the raw body bytes and leaves req with a fresh reader
// over the same bytes.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
