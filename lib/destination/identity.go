package destination

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"strings"
)

// Legacy I2P identity field sizes. A Key Certificate (certificate type 5)
// repurposes the padding in these two slots to carry modern key material
// instead of the original DSA/ElGamal keys; anything that doesn't fit gets
// appended to the certificate payload instead. See go-i2p's data.Identity
// for the original byte layout this mirrors.
const (
	legacyPublicKeySize  = 256
	legacySigningKeySize = 128
	certHeaderSize       = 3
	minIdentitySize      = legacyPublicKeySize + legacySigningKeySize + certHeaderSize // 387
)

// Certificate types.
const (
	CertTypeNull = 0
	CertTypeKey  = 5
)

// ErrTooShort indicates a buffer is too small to contain a valid identity.
var ErrTooShort = errors.New("destination: buffer too short")

// Identity is a full I2P destination: the 387-byte legacy-shaped prefix
// followed by a certificate payload whose length is always sufficient, by
// itself, to know where the identity ends -- no certificate-type-specific
// knowledge is needed to skip past it.
type Identity struct {
	PublicKeySlot  [legacyPublicKeySize]byte
	SigningKeySlot [legacySigningKeySize]byte
	CertType       byte
	CertPayload    []byte
}

// ParseIdentity reads an Identity from the front of data and returns the
// number of bytes consumed, so callers holding a private-key blob (identity
// followed by private key material) know where the identity ends.
func ParseIdentity(data []byte) (*Identity, int, error) {
	if len(data) < minIdentitySize {
		return nil, 0, ErrTooShort
	}

	id := &Identity{}
	copy(id.PublicKeySlot[:], data[:legacyPublicKeySize])
	copy(id.SigningKeySlot[:], data[legacyPublicKeySize:legacyPublicKeySize+legacySigningKeySize])

	certOffset := legacyPublicKeySize + legacySigningKeySize
	id.CertType = data[certOffset]
	certLen := int(binary.BigEndian.Uint16(data[certOffset+1 : certOffset+3]))

	total := minIdentitySize + certLen
	if len(data) < total {
		return nil, 0, ErrTooShort
	}
	if certLen > 0 {
		id.CertPayload = append([]byte(nil), data[minIdentitySize:total]...)
	}

	return id, total, nil
}

// Bytes serializes the Identity back to its wire form.
func (id *Identity) Bytes() []byte {
	buf := make([]byte, minIdentitySize+len(id.CertPayload))
	copy(buf, id.PublicKeySlot[:])
	copy(buf[legacyPublicKeySize:], id.SigningKeySlot[:])

	certOffset := legacyPublicKeySize + legacySigningKeySize
	buf[certOffset] = id.CertType
	binary.BigEndian.PutUint16(buf[certOffset+1:certOffset+3], uint16(len(id.CertPayload)))
	copy(buf[minIdentitySize:], id.CertPayload)

	return buf
}

// Hash returns the SHA-256 ident hash of the serialized identity, the value
// I2P addresses destinations by.
func (id *Identity) Hash() [32]byte {
	return sha256.Sum256(id.Bytes())
}

// B32Address returns the canonical lowercase, unpadded Base32 address for
// this identity, suffixed with ".b32.i2p".
func (id *Identity) B32Address() string {
	hash := id.Hash()
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(hash[:])) + ".b32.i2p"
}

// KeyCertificate describes the modern signing/encryption key types carried
// by a type-5 certificate, along with any key bytes that overflow the
// legacy 256/128-byte slots.
type KeyCertificate struct {
	SigningKeyType int
	CryptoKeyType  int
	ExtraData      []byte
}

// ParseKeyCertificate decodes the certificate payload of an Identity whose
// CertType is CertTypeKey.
func ParseKeyCertificate(id *Identity) (*KeyCertificate, error) {
	if id.CertType != CertTypeKey {
		return nil, errors.New("destination: not a key certificate")
	}
	if len(id.CertPayload) < 4 {
		return nil, errors.New("destination: key certificate payload too short")
	}
	kc := &KeyCertificate{
		SigningKeyType: int(binary.BigEndian.Uint16(id.CertPayload[0:2])),
		CryptoKeyType:  int(binary.BigEndian.Uint16(id.CertPayload[2:4])),
	}
	if len(id.CertPayload) > 4 {
		kc.ExtraData = append([]byte(nil), id.CertPayload[4:]...)
	}
	return kc, nil
}

// signingKeyLength returns the on-wire public signing key length for a
// signature type. Only the types Generate can produce need to be accurate;
// others are rejected before this is consulted.
func signingKeyLength(sigType int) int {
	switch sigType {
	case SigTypeEd25519, SigTypeEd25519ph:
		return 32
	default:
		return 0
	}
}

// cryptoKeyLength returns the on-wire public encryption key length for a
// crypto type.
func cryptoKeyLength(cryptoType int) int {
	switch cryptoType {
	case EncTypeECIES_X25519:
		return 32
	case EncTypeElGamal:
		return 256
	default:
		return 0
	}
}

// NewKeyCertificateIdentity builds an Identity carrying a type-5 key
// certificate for the given signing and encryption public keys. Keys that
// fit within the legacy slots are right-aligned with leading zero padding;
// any overflow (not needed for Ed25519/X25519, but kept general) is folded
// into the certificate's ExtraData per go-i2p's KeyCertificate convention.
func NewKeyCertificateIdentity(sigType, cryptoType int, signingPub, cryptoPub []byte) (*Identity, error) {
	sigLen := signingKeyLength(sigType)
	cryptoLen := cryptoKeyLength(cryptoType)
	if sigLen == 0 || len(signingPub) != sigLen {
		return nil, errors.New("destination: unsupported or mismatched signing key")
	}
	if cryptoLen == 0 || len(cryptoPub) != cryptoLen {
		return nil, errors.New("destination: unsupported or mismatched crypto key")
	}

	id := &Identity{CertType: CertTypeKey}

	if cryptoLen <= legacyPublicKeySize {
		copy(id.PublicKeySlot[legacyPublicKeySize-cryptoLen:], cryptoPub)
	}
	var signingExtra []byte
	if sigLen <= legacySigningKeySize {
		copy(id.SigningKeySlot[legacySigningKeySize-sigLen:], signingPub)
	} else {
		copy(id.SigningKeySlot[:], signingPub[:legacySigningKeySize])
		signingExtra = signingPub[legacySigningKeySize:]
	}

	payload := make([]byte, 4, 4+len(signingExtra))
	binary.BigEndian.PutUint16(payload[0:2], uint16(sigType))
	binary.BigEndian.PutUint16(payload[2:4], uint16(cryptoType))
	payload = append(payload, signingExtra...)
	id.CertPayload = payload

	return id, nil
}

// SigningPublicKey extracts the signing public key bytes from the legacy
// slot plus certificate overflow, given the key certificate describing it.
func (id *Identity) SigningPublicKey(kc *KeyCertificate) []byte {
	sigLen := signingKeyLength(kc.SigningKeyType)
	if sigLen == 0 {
		return nil
	}
	if sigLen <= legacySigningKeySize {
		return append([]byte(nil), id.SigningKeySlot[legacySigningKeySize-sigLen:]...)
	}
	out := make([]byte, 0, sigLen)
	out = append(out, id.SigningKeySlot[:]...)
	out = append(out, kc.ExtraData...)
	return out
}

// CryptoPublicKey extracts the encryption public key bytes from the legacy
// slot, given the key certificate describing it.
func (id *Identity) CryptoPublicKey(kc *KeyCertificate) []byte {
	cryptoLen := cryptoKeyLength(kc.CryptoKeyType)
	if cryptoLen == 0 || cryptoLen > legacyPublicKeySize {
		return nil
	}
	return append([]byte(nil), id.PublicKeySlot[legacyPublicKeySize-cryptoLen:]...)
}
