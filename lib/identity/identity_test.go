package identity

import (
	"strings"
	"testing"

	"github.com/go-i2p/go-sam-client/lib/destination"
)

func TestGenerateRandomNickname(t *testing.T) {
	nick, err := GenerateRandomNickname()
	if err != nil {
		t.Fatalf("GenerateRandomNickname error: %v", err)
	}
	if len(nick) != nicknameLength {
		t.Errorf("len(nick) = %d, want %d", len(nick), nicknameLength)
	}
	for _, c := range nick {
		if c < 'a' || c > 'z' {
			t.Errorf("nickname %q contains non-lowercase character %q", nick, c)
		}
	}
}

func TestGenerateRandomNickname_Varies(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		nick, err := GenerateRandomNickname()
		if err != nil {
			t.Fatal(err)
		}
		seen[nick] = true
	}
	if len(seen) < 2 {
		t.Error("GenerateRandomNickname produced the same value 20 times in a row")
	}
}

func TestGeneratePrivateKey(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey error: %v", err)
	}
	if key == "" {
		t.Fatal("GeneratePrivateKey returned empty string")
	}

	mgr := destination.NewManager()
	if _, _, err := mgr.Parse(key); err != nil {
		t.Fatalf("generated key did not parse back: %v", err)
	}
}

func TestGenerateKeyAndIdentity(t *testing.T) {
	priv, b32, err := GenerateKeyAndIdentity()
	if err != nil {
		t.Fatalf("GenerateKeyAndIdentity error: %v", err)
	}
	if priv == "" {
		t.Error("private key should not be empty")
	}
	if !strings.HasSuffix(b32, ".b32.i2p") {
		t.Errorf("b32 address = %q, missing .b32.i2p suffix", b32)
	}
}

func TestBFromSamDestination_TransientAndPublicAgree(t *testing.T) {
	priv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}

	mgr := destination.NewManager()
	id, _, err := mgr.Parse(priv)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := mgr.EncodePublic(id)
	if err != nil {
		t.Fatal(err)
	}

	fromPriv := BFromSamDestination(priv, true)
	fromPub := BFromSamDestination(pub, false)
	if fromPriv != fromPub {
		t.Errorf("BFromSamDestination mismatch: transient=%q public=%q", fromPriv, fromPub)
	}
}

func TestBFromSamDestination_Deterministic(t *testing.T) {
	priv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}

	first := BFromSamDestination(priv, true)
	second := BFromSamDestination(priv, true)
	if first != second {
		t.Errorf("BFromSamDestination not deterministic: %q != %q", first, second)
	}
}

func TestBFromSamDestination_DecodeFailure(t *testing.T) {
	got := BFromSamDestination("not-valid-base64!!!", false)
	if !strings.HasPrefix(got, "not-valid-base64!!!") {
		t.Errorf("got = %q, want original field preserved as prefix", got)
	}
	if !strings.Contains(got, "(Error:") {
		t.Errorf("got = %q, want an (Error: ...) suffix", got)
	}
}
