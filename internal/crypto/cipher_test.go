package crypto

import (
	"strings"
	"testing"
)

func TestAEADRoundTrip(t *testing.T) {
	c, err := NewAEAD([]byte("local device secret"))
	if err != nil {
		t.Fatalf("NewAEAD: %v", err)
	}

	sealed, err := c.Encrypt("-125000")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(sealed, "125000") {
		t.Fatalf("sealed value leaks plaintext: %q", sealed)
	}

	again, err := c.Encrypt("-125000")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if again == sealed {
		t.Fatal("expected a fresh nonce per encryption")
	}

	opened, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if opened != "-125000" {
		t.Fatalf("Decrypt() = %q, want %q", opened, "-125000")
	}
}

func TestAEADRejectsTampering(t *testing.T) {
	c, err := NewAEAD([]byte("secret-a"))
	if err != nil {
		t.Fatalf("NewAEAD: %v", err)
	}
	sealed, err := c.Encrypt("notes")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	other, err := NewAEAD([]byte("secret-b"))
	if err != nil {
		t.Fatalf("NewAEAD: %v", err)
	}
	if _, err := other.Decrypt(sealed); err == nil {
		t.Fatal("expected decrypt with another key to fail")
	}
	if _, err := c.Decrypt("AAAA"); err == nil {
		t.Fatal("expected short payload to fail")
	}
	if _, err := c.Decrypt("not base64!"); err == nil {
		t.Fatal("expected bad encoding to fail")
	}
}

func TestNewAEADRequiresSecret(t *testing.T) {
	if _, err := NewAEAD(nil); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestNoop(t *testing.T) {
	var c Cipher = Noop{}
	sealed, _ := c.Encrypt("plain")
	opened, _ := c.Decrypt(sealed)
	if sealed != "plain" || opened != "plain" || c.Enabled() {
		t.Fatalf("Noop should pass values through")
	}
}
