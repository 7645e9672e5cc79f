// Package cursor issues and verifies signed resume cursors. A cursor binds a
// feed name, the last delivered event ID, and optionally the subject it was
// issued to, so a client cannot replay a cursor against another feed or
// another principal's stream.
package cursor

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

// ErrInvalid indicates the cursor failed to parse or verify, or was issued
// for a different feed or subject.
var ErrInvalid = errors.New("cursor: invalid")

// Claims is the signed payload of a cursor.
type Claims struct {
	Feed        string `json:"feed"`
	LastEventID string `json:"last_event_id"`
	Subject     string `json:"sub,omitempty"`
}

// Codec signs and verifies compact cursors.
type Codec interface {
	// Encode returns an opaque cursor string for the given claims.
	Encode(c Claims) (string, error)
	// Decode verifies tok and returns its claims. The claims are not yet
	// checked against any particular feed or subject; use Claims.Validate.
	Decode(tok string) (Claims, error)
}

// Validate checks that the claims were issued for the given feed and, when
// the cursor carries a subject, for the given subject.
func (c Claims) Validate(feed, subject string) error {
	if c.Feed != feed {
		return fmt.Errorf("%w: feed mismatch", ErrInvalid)
	}
	if c.Subject != "" && c.Subject != subject {
		return fmt.Errorf("%w: subject mismatch", ErrInvalid)
	}
	return nil
}

// MemoryCodec implements Codec with an in-memory set of Ed25519 keys and a
// designated active key for signing. Cursors signed by any registered key
// verify, so keys can be rotated without invalidating outstanding cursors.
type MemoryCodec struct {
	activeKid string
	privKeys  map[string]ed25519.PrivateKey
	pubKeys   map[string]ed25519.PublicKey
}

// NewMemoryCodec creates an empty codec. Register at least one key with
// AddEd25519Key and select it with SetActive before encoding.
func NewMemoryCodec() *MemoryCodec {
	return &MemoryCodec{
		privKeys: make(map[string]ed25519.PrivateKey),
		pubKeys:  make(map[string]ed25519.PublicKey),
	}
}

// NewEphemeralCodec creates a codec with a single freshly generated key.
// Cursors it issues do not survive process restarts; use persistent keys for
// multi-node deployments.
func NewEphemeralCodec() (*MemoryCodec, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate cursor key: %w", err)
	}
	m := NewMemoryCodec()
	m.AddEd25519Key("ephemeral", priv)
	if err := m.SetActive("ephemeral"); err != nil {
		return nil, err
	}
	return m, nil
}

// AddEd25519Key registers a key pair under kid. The active key is unchanged.
func (m *MemoryCodec) AddEd25519Key(kid string, priv ed25519.PrivateKey) {
	m.privKeys[kid] = priv
	m.pubKeys[kid] = priv.Public().(ed25519.PublicKey)
}

// SetActive selects the key used for signing.
func (m *MemoryCodec) SetActive(kid string) error {
	if _, ok := m.privKeys[kid]; !ok {
		return fmt.Errorf("unknown kid: %s", kid)
	}
	m.activeKid = kid
	return nil
}

func (m *MemoryCodec) Encode(c Claims) (string, error) {
	if m.activeKid == "" {
		return "", errors.New("no active kid configured")
	}
	priv, ok := m.privKeys[m.activeKid]
	if !ok {
		return "", fmt.Errorf("active kid not found: %s", m.activeKid)
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor claims: %w", err)
	}
	opts := (&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", m.activeKid)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: priv}, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign cursor: %w", err)
	}
	compact, err := jws.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize cursor: %w", err)
	}
	return compact, nil
}

func (m *MemoryCodec) Decode(tok string) (Claims, error) {
	jws, err := jose.ParseSigned(tok, []jose.SignatureAlgorithm{jose.EdDSA})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(jws.Signatures) != 1 {
		return Claims{}, fmt.Errorf("%w: unexpected signatures: %d", ErrInvalid, len(jws.Signatures))
	}
	kid := jws.Signatures[0].Protected.KeyID
	pub, ok := m.pubKeys[kid]
	if !ok {
		return Claims{}, fmt.Errorf("%w: unknown kid: %s", ErrInvalid, kid)
	}
	payload, err := jws.Verify(pub)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: signature verification failed", ErrInvalid)
	}
	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return Claims{}, fmt.Errorf("%w: malformed claims", ErrInvalid)
	}
	return c, nil
}

var _ Codec = (*MemoryCodec)(nil)
