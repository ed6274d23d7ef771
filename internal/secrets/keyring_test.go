package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestKeyringStoreSetGetDelete(t *testing.T) {
	keyring.MockInit()
	k := NewKeyringStore("coindle-test", "")

	if _, err := k.TokenSecret(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before set, got %v", err)
	}

	if err := k.SetTokenSecret("s3cret"); err != nil {
		t.Fatalf("SetTokenSecret: %v", err)
	}
	got, err := k.TokenSecret()
	if err != nil {
		t.Fatalf("TokenSecret: %v", err)
	}
	if got != "s3cret" {
		t.Fatalf("TokenSecret = %q", got)
	}

	if err := k.DeleteTokenSecret(); err != nil {
		t.Fatalf("DeleteTokenSecret: %v", err)
	}
	if _, err := k.TokenSecret(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestKeyringStoreFallbackFile(t *testing.T) {
	keyring.MockInitWithError(errors.New("dbus: session bus not available"))
	t.Cleanup(keyring.MockInit)

	path := filepath.Join(t.TempDir(), "nested", "secrets.json")
	k := NewKeyringStore("", path)

	if err := k.SetTokenSecret("from-file"); err != nil {
		t.Fatalf("SetTokenSecret: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("fallback file missing: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("fallback file mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := k.TokenSecret()
	if err != nil || got != "from-file" {
		t.Fatalf("TokenSecret = %q, %v", got, err)
	}

	if err := k.DeleteTokenSecret(); err != nil {
		t.Fatalf("DeleteTokenSecret: %v", err)
	}
	if _, err := k.TokenSecret(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestKeyringUnavailableWithoutFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("dbus: session bus not available"))
	t.Cleanup(keyring.MockInit)

	k := NewKeyringStore("coindle-test", "")
	if err := k.SetTokenSecret("x"); err == nil {
		t.Fatal("expected error without keyring or fallback")
	}
	if _, err := k.TokenSecret(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetEmptySecretRejected(t *testing.T) {
	keyring.MockInit()
	if err := NewKeyringStore("coindle-test", "").SetTokenSecret("  "); err == nil {
		t.Fatal("expected error for blank secret")
	}
}
