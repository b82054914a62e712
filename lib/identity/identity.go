// Package identity implements the three Identity Utils operations the SAM
// client needs: converting a destination field from a SAM reply into its
// canonical .b32.i2p address, generating a fresh private key, and producing
// the random nicknames sessions are registered under.
package identity

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/go-i2p/go-sam-client/lib/destination"
)

const nicknameLength = 6

// nicknameAlphabet is restricted to lowercase letters; SAM session IDs just
// need to be unique and whitespace-free, and single-case letters avoid any
// ambiguity in logs.
const nicknameAlphabet = "abcdefghijklmnopqrstuvwxyz"

// GenerateRandomNickname returns six random lowercase letters, suitable for
// use as a SAM session ID.
func GenerateRandomNickname() (string, error) {
	buf := make([]byte, nicknameLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("identity: generate nickname: %w", err)
	}
	out := make([]byte, nicknameLength)
	for i, b := range buf {
		out[i] = nicknameAlphabet[int(b)%len(nicknameAlphabet)]
	}
	return string(out), nil
}

// GeneratePrivateKey generates a fresh Ed25519/X25519 destination and
// returns the Base64 encoding of its full private key blob, in the form
// SESSION CREATE's DESTINATION= field expects.
func GeneratePrivateKey() (string, error) {
	mgr := destination.NewManager()
	id, priv, err := mgr.Generate(destination.SigTypeEd25519)
	if err != nil {
		return "", fmt.Errorf("identity: generate private key: %w", err)
	}
	encoded, err := mgr.Encode(id, priv)
	if err != nil {
		return "", fmt.Errorf("identity: encode private key: %w", err)
	}
	return encoded, nil
}

// GenerateKeyAndIdentity generates a fresh private key and returns both its
// Base64 form and the .b32.i2p address it corresponds to.
func GenerateKeyAndIdentity() (privB64, b32Addr string, err error) {
	privB64, err = GeneratePrivateKey()
	if err != nil {
		return "", "", err
	}
	b32Addr = BFromSamDestination(privB64, true)
	return privB64, b32Addr, nil
}

var b32Cache = newFieldCache()

// BFromSamDestination converts a destination field from a SAM reply into
// its canonical .b32.i2p address.
//
// If isTransient is true, field is a complete Base64 private key blob (as
// SESSION STATUS returns for a TRANSIENT session); otherwise field is a
// Base64 public destination blob (as STREAM STATUS's FROM_DESTINATION, or
// DEST REPLY's PUB, return). Either way the address is the lowercase,
// unpadded Base32 of the SHA-256 hash of the identity's serialized form.
//
// On decode failure the original field is returned with a parenthetical
// error suffix rather than an error value, matching the reference client's
// convention of treating this as a loggable-but-not-fatal condition at this
// layer; callers that need a hard failure detect the suffix by substring.
func BFromSamDestination(field string, isTransient bool) string {
	if addr, ok := b32Cache.get(field, isTransient); ok {
		return addr
	}

	addr := deriveB32Address(field, isTransient)
	b32Cache.put(field, isTransient, addr)
	return addr
}

func deriveB32Address(field string, isTransient bool) string {
	mgr := destination.NewManager()

	if isTransient {
		id, _, err := mgr.Parse(field)
		if err != nil {
			return field + " (Error: " + err.Error() + ")"
		}
		return id.B32Address()
	}

	id, err := mgr.ParsePublic(field)
	if err != nil {
		return field + " (Error: " + err.Error() + ")"
	}
	return id.B32Address()
}

// fieldCache memoizes field/isTransient pairs to their derived b32 address,
// since the same FROM_DESTINATION or DESTINATION field is often converted
// more than once within a session's lifetime (e.g. re-logging a peer that
// reconnects). Unlike the destination.Manager's bounded LRU cache of parsed
// destinations, this is a plain mutex-protected map with no eviction.
type fieldCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func newFieldCache() *fieldCache {
	return &fieldCache{entries: make(map[string]string)}
}

func cacheKey(field string, isTransient bool) string {
	if isTransient {
		return "t:" + field
	}
	return "p:" + field
}

func (c *fieldCache) get(field string, isTransient bool) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[cacheKey(field, isTransient)]
	return v, ok
}

func (c *fieldCache) put(field string, isTransient bool, addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(field, isTransient)] = addr
}
