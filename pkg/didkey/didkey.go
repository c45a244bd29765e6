// Package didkey implements the did:key identity primitives: Ed25519 key
// handling, DID encoding and decoding, and the canonical strings that
// request signatures are computed over.
package didkey

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// Prefix is the scheme every Lattice DID starts with. The 'z' that follows
// is the multibase marker for base58btc.
const Prefix = "did:key:"

// TimestampWindow is how far a signed timestamp may drift from server time,
// in milliseconds, before the request is rejected. Applies to both the
// request canonical string and the registration challenge.
const TimestampWindow int64 = 5 * 60 * 1000

// multicodec tag for an Ed25519 public key (0xED varint-encoded, then 0x01).
var multicodecEd25519 = []byte{0xed, 0x01}

// KeyPair couples a DID with the keys that produce it. The SDK and tests
// mint these; the server only ever sees public halves.
type KeyPair struct {
	DID        string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 identity and its derived DID.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	did, err := Encode(pub)
	if err != nil {
		return nil, err
	}
	return &KeyPair{DID: did, PublicKey: pub, PrivateKey: priv}, nil
}

// Encode renders a public key as did:key:z<base58btc(0xED01 || key)>.
func Encode(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid public key size: got %d, want %d", len(pub), ed25519.PublicKeySize)
	}
	payload := make([]byte, 0, len(multicodecEd25519)+ed25519.PublicKeySize)
	payload = append(payload, multicodecEd25519...)
	payload = append(payload, pub...)
	return Prefix + "z" + base58.Encode(payload), nil
}

// Decode extracts the Ed25519 public key from a did:key string. It fails
// closed: wrong prefix, wrong multibase marker, bad base58, wrong multicodec
// tag, or wrong key length all reject.
func Decode(did string) (ed25519.PublicKey, error) {
	if len(did) <= len(Prefix) || did[:len(Prefix)] != Prefix {
		return nil, fmt.Errorf("not a did:key identifier")
	}
	rest := did[len(Prefix):]
	if rest[0] != 'z' {
		return nil, fmt.Errorf("unsupported multibase prefix %q", rest[0])
	}
	payload := base58.Decode(rest[1:])
	if len(payload) == 0 {
		return nil, fmt.Errorf("invalid base58 payload")
	}
	if len(payload) != len(multicodecEd25519)+ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid payload size: got %d, want %d", len(payload), len(multicodecEd25519)+ed25519.PublicKeySize)
	}
	if !bytes.Equal(payload[:2], multicodecEd25519) {
		return nil, fmt.Errorf("unsupported multicodec tag 0x%x", payload[:2])
	}
	return ed25519.PublicKey(payload[2:]), nil
}

// PublicKeyFromBase64 decodes the registration payload form of a key.
func PublicKeyFromBase64(s string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size: got %d, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// CanonicalRequest builds the exact byte string an authenticated request
// signs: METHOD:PATH:TIMESTAMP_MS:NONCE:BODY. PATH is the original request
// URI including the query string, and BODY is the raw wire bytes; callers
// must not re-serialise a parsed form.
func CanonicalRequest(method, path string, timestampMs int64, nonce string, body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(method) + len(path) + len(nonce) + len(body) + 24)
	buf.WriteString(method)
	buf.WriteByte(':')
	buf.WriteString(path)
	buf.WriteByte(':')
	buf.WriteString(strconv.FormatInt(timestampMs, 10))
	buf.WriteByte(':')
	buf.WriteString(nonce)
	buf.WriteByte(':')
	buf.Write(body)
	return buf.Bytes()
}

// RegistrationChallenge builds the proof-of-possession string signed during
// registration: REGISTER:{did}:{timestamp_ms}:{publicKeyBase64}.
func RegistrationChallenge(did string, timestampMs int64, publicKeyB64 string) []byte {
	return []byte("REGISTER:" + did + ":" + strconv.FormatInt(timestampMs, 10) + ":" + publicKeyB64)
}

// Sign produces a raw Ed25519 signature over message. No pre-hashing.
func Sign(priv ed25519.PrivateKey, message []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: got %d, want %d", len(priv), ed25519.PrivateKeySize)
	}
	return ed25519.Sign(priv, message), nil
}

// Verify checks a raw Ed25519 signature. It returns an error only for
// malformed inputs; a well-formed signature that does not match reports
// (false, nil).
func Verify(pub ed25519.PublicKey, message, signature []byte) (bool, error) {
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key size: got %d, want %d", len(pub), ed25519.PublicKeySize)
	}
	if len(signature) != ed25519.SignatureSize {
		return false, fmt.Errorf("invalid signature size: got %d, want %d", len(signature), ed25519.SignatureSize)
	}
	return ed25519.Verify(pub, message, signature), nil
}
