package destination

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/curve25519"
)

// destCacheSize bounds ParsePublic's cache. A long-lived session sees many
// distinct peers over its lifetime; an unbounded map would grow forever.
const destCacheSize = 4096

// Manager handles I2P destination creation, parsing, and encoding. This is
// the client's counterpart to DEST GENERATE and to decoding the
// DESTINATION=/PUB=/PRIV= fields the bridge returns.
type Manager interface {
	// Generate creates a new destination with the specified signature type.
	// Only SigTypeEd25519 is supported; every other wire value is rejected.
	Generate(signatureType int) (*Identity, []byte, error)

	// Parse decodes a Base64 private key string (identity followed by
	// private key material) into the identity and the raw private key bytes.
	Parse(privkeyBase64 string) (*Identity, []byte, error)

	// ParsePublic decodes a Base64 public destination string.
	ParsePublic(destBase64 string) (*Identity, error)

	// Encode converts an identity and private key to Base64 private key format.
	Encode(dest *Identity, privateKey []byte) (string, error)

	// EncodePublic converts an Identity to Base64 public format.
	EncodePublic(d *Identity) (string, error)
}

// ManagerImpl is the concrete Manager implementation.
type ManagerImpl struct {
	// cache stores parsed public destinations, keyed by their Base64 form,
	// since the same peer destination is often looked up repeatedly within
	// a session's lifetime. lru.Cache is safe for concurrent use.
	cache *lru.Cache[string, *Identity]
}

// NewManager creates a new destination manager.
func NewManager() *ManagerImpl {
	cache, err := lru.New[string, *Identity](destCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size.
		panic(err)
	}
	return &ManagerImpl{cache: cache}
}

// Manager errors.
var (
	ErrUnsupportedSignatureType = errors.New("unsupported signature type")
	ErrInvalidDestination       = errors.New("invalid destination")
	ErrInvalidPrivateKey        = errors.New("invalid private key")
)

// Generate creates a new Ed25519/X25519 destination and returns its
// identity along with the raw private key bytes (32-byte X25519 scalar
// followed by the 64-byte Ed25519 private key) in the order SAM private
// key blobs expect.
func (m *ManagerImpl) Generate(signatureType int) (*Identity, []byte, error) {
	if !IsValidSignatureType(signatureType) {
		return nil, nil, ErrUnsupportedSignatureType
	}
	if signatureType != SigTypeEd25519 {
		return nil, nil, ErrUnsupportedSignatureType
	}

	signingPub, signingPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	var cryptoPriv [32]byte
	if _, err := rand.Read(cryptoPriv[:]); err != nil {
		return nil, nil, err
	}
	cryptoPub, err := curve25519.X25519(cryptoPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}

	id, err := NewKeyCertificateIdentity(SigTypeEd25519, EncTypeECIES_X25519, signingPub, cryptoPub)
	if err != nil {
		return nil, nil, err
	}

	privateKey := make([]byte, 0, len(cryptoPriv)+len(signingPriv))
	privateKey = append(privateKey, cryptoPriv[:]...)
	privateKey = append(privateKey, signingPriv...)

	return id, privateKey, nil
}

// Parse decodes a Base64 private key string into an identity and the
// remaining private key bytes.
func (m *ManagerImpl) Parse(privkeyBase64 string) (*Identity, []byte, error) {
	if privkeyBase64 == "" {
		return nil, nil, ErrInvalidPrivateKey
	}

	data, err := Base64Decode(privkeyBase64)
	if err != nil {
		return nil, nil, err
	}

	id, consumed, err := ParseIdentity(data)
	if err != nil {
		return nil, nil, ErrInvalidPrivateKey
	}

	return id, data[consumed:], nil
}

// ParsePublic decodes a Base64 public destination string, caching the result.
func (m *ManagerImpl) ParsePublic(destBase64 string) (*Identity, error) {
	if destBase64 == "" {
		return nil, ErrInvalidDestination
	}

	if cached, ok := m.cache.Get(destBase64); ok {
		return cached, nil
	}

	data, err := Base64Decode(destBase64)
	if err != nil {
		return nil, err
	}

	id, _, err := ParseIdentity(data)
	if err != nil {
		return nil, ErrInvalidDestination
	}

	m.cache.Add(destBase64, id)
	return id, nil
}

// Encode converts an identity and private key to Base64 private key format.
func (m *ManagerImpl) Encode(dest *Identity, privateKey []byte) (string, error) {
	if dest == nil {
		return "", ErrInvalidDestination
	}
	full := append(append([]byte(nil), dest.Bytes()...), privateKey...)
	return Base64Encode(full), nil
}

// EncodePublic converts an Identity to Base64 public format.
func (m *ManagerImpl) EncodePublic(d *Identity) (string, error) {
	if d == nil {
		return "", ErrInvalidDestination
	}
	return Base64Encode(d.Bytes()), nil
}

// ClearCache clears the destination cache.
func (m *ManagerImpl) ClearCache() {
	m.cache.Purge()
}

// CacheSize returns the number of cached destinations.
func (m *ManagerImpl) CacheSize() int {
	return m.cache.Len()
}

var _ Manager = (*ManagerImpl)(nil)
