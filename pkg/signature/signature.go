// Package signature verifies and produces signify-format Ed25519
// signatures.
//
// Public key layout (42 bytes): "Ed", 8-byte key id, 32-byte key.
// Signature layout (74 bytes): "Ed", 8-byte key id, 64-byte signature.
// Both travel as standard base64.
package signature

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/grapheneos/appstore/pkg/errors"
)

const (
	PublicKeySize = 42
	SignatureSize = 74
	// EncodedSignatureSize is the base64 length of a signature.
	EncodedSignatureSize = 100

	keyIDSize = 8
	algEnd    = 2
	keyIDEnd  = algEnd + keyIDSize
)

var algorithm = []byte("Ed")

// Verifier checks signatures made by one public key.
type Verifier struct {
	keyID [keyIDSize]byte
	key   ed25519.PublicKey
}

// NewVerifier parses a base64 signify public key.
func NewVerifier(base64Key string) (*Verifier, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrPublicKeyFormat, err.Error())
	}
	if len(raw) != PublicKeySize {
		return nil, errors.Wrapf(errors.ErrPublicKeyFormat, "invalid key size %d", len(raw))
	}
	if !bytes.Equal(raw[:algEnd], algorithm) {
		return nil, errors.Wrapf(errors.ErrPublicKeyFormat, "invalid algorithm %q", raw[:algEnd])
	}
	v := &Verifier{key: ed25519.PublicKey(bytes.Clone(raw[keyIDEnd:]))}
	copy(v.keyID[:], raw[algEnd:keyIDEnd])
	return v, nil
}

// Verify returns nil only if base64Sig is a valid signature of message.
func (v *Verifier) Verify(message []byte, base64Sig string) error {
	raw, err := base64.StdEncoding.DecodeString(base64Sig)
	if err != nil {
		return errors.Wrap(errors.ErrSignatureFormat, err.Error())
	}
	if len(raw) != SignatureSize {
		return errors.Wrapf(errors.ErrSignatureFormat, "invalid signature size %d", len(raw))
	}
	if !bytes.Equal(raw[:algEnd], algorithm) {
		return errors.Wrapf(errors.ErrSignatureFormat, "invalid algorithm %q", raw[:algEnd])
	}
	if !bytes.Equal(raw[algEnd:keyIDEnd], v.keyID[:]) {
		return errors.Wrapf(errors.ErrSignatureKeyID, "got %x, expected %x", raw[algEnd:keyIDEnd], v.keyID)
	}
	if !ed25519.Verify(v.key, message, raw[keyIDEnd:]) {
		return errors.ErrSignatureInvalid
	}
	return nil
}

// KeyID returns the key id as hex.
func (v *Verifier) KeyID() string {
	return fmt.Sprintf("%x", v.keyID)
}

// Signer produces signify signatures. It is used by repository tooling and
// tests.
type Signer struct {
	keyID [keyIDSize]byte
	priv  ed25519.PrivateKey
}

// GenerateSigner creates a fresh key pair with a random key id.
func GenerateSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	s := &Signer{priv: priv}
	if _, err := rand.Read(s.keyID[:]); err != nil {
		return nil, err
	}
	return s, nil
}

// NewSigner restores a signer from its encoded private key.
func NewSigner(base64Private string) (*Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Private)
	if err != nil {
		return nil, errors.Wrap(errors.ErrPublicKeyFormat, err.Error())
	}
	if len(raw) != keyIDEnd+ed25519.PrivateKeySize || !bytes.Equal(raw[:algEnd], algorithm) {
		return nil, errors.Wrap(errors.ErrPublicKeyFormat, "invalid private key")
	}
	s := &Signer{priv: ed25519.PrivateKey(bytes.Clone(raw[keyIDEnd:]))}
	copy(s.keyID[:], raw[algEnd:keyIDEnd])
	return s, nil
}

// PublicKey returns the base64 signify public key.
func (s *Signer) PublicKey() string {
	buf := make([]byte, 0, PublicKeySize)
	buf = append(buf, algorithm...)
	buf = append(buf, s.keyID[:]...)
	buf = append(buf, s.priv.Public().(ed25519.PublicKey)...)
	return base64.StdEncoding.EncodeToString(buf)
}

// PrivateKey returns the encoded private key: "Ed", key id, seed and
// public key.
func (s *Signer) PrivateKey() string {
	buf := make([]byte, 0, keyIDEnd+ed25519.PrivateKeySize)
	buf = append(buf, algorithm...)
	buf = append(buf, s.keyID[:]...)
	buf = append(buf, s.priv...)
	return base64.StdEncoding.EncodeToString(buf)
}

// Sign returns the base64 signify signature of message.
func (s *Signer) Sign(message []byte) string {
	buf := make([]byte, 0, SignatureSize)
	buf = append(buf, algorithm...)
	buf = append(buf, s.keyID[:]...)
	buf = append(buf, ed25519.Sign(s.priv, message)...)
	return base64.StdEncoding.EncodeToString(buf)
}

// SignedBody returns the repository wire form of message: the message, a
// newline, the encoded signature and a trailing newline.
func (s *Signer) SignedBody(message []byte) []byte {
	sig := s.Sign(message)
	out := make([]byte, 0, len(message)+len(sig)+2)
	out = append(out, message...)
	out = append(out, '\n')
	out = append(out, sig...)
	return append(out, '\n')
}

// SplitSignedBody is the inverse of SignedBody. It does not verify.
func SplitSignedBody(body []byte) (message []byte, encodedSig string, err error) {
	const trailer = EncodedSignatureSize + 2
	if len(body) < trailer {
		return nil, "", errors.Wrapf(errors.ErrRepoBodyFormat, "body has %d bytes", len(body))
	}
	message = body[:len(body)-trailer]
	encodedSig = string(body[len(body)-trailer+1 : len(body)-1])
	return message, encodedSig, nil
}
