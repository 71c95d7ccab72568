package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	d := New("/tmp/mutant-test")
	if d.Root() != "/tmp/mutant-test" {
		t.Errorf("expected root /tmp/mutant-test, got %s", d.Root())
	}
}

func TestDefault(t *testing.T) {
	d, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if d.Root() == "" {
		t.Fatal("expected non-empty root")
	}
	if filepath.Base(d.Root()) != "mutant" {
		t.Errorf("expected root to end with 'mutant', got %s", d.Root())
	}
}

func TestConfigPath(t *testing.T) {
	d := New("/data")
	if got := d.ConfigPath(); got != "/data/config.json" {
		t.Errorf("got %s", got)
	}
}

func TestWalletDir(t *testing.T) {
	d := New("/data")
	if got := d.WalletDir("abc123"); got != "/data/wallets/abc123" {
		t.Errorf("got %s", got)
	}
}

func TestIndexCachePath(t *testing.T) {
	d := New("/data")
	if got := d.IndexCachePath("abc123"); got != "/data/wallets/abc123/index-cache.cbor" {
		t.Errorf("got %s", got)
	}
}

func TestPadsDir(t *testing.T) {
	d := New("/data")
	if got := d.PadsDir("abc123"); got != "/data/wallets/abc123/pads" {
		t.Errorf("got %s", got)
	}
}

func TestEnsureExists(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "mutant")
	d := New(root)
	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected directory")
	}

	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists (idempotent): %v", err)
	}
}

func TestEnsureWalletDir(t *testing.T) {
	root := t.TempDir()
	d := New(root)
	if err := d.EnsureWalletDir("wallet-1"); err != nil {
		t.Fatalf("EnsureWalletDir: %v", err)
	}
	info, err := os.Stat(d.WalletDir("wallet-1"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected directory")
	}
}
