package settings

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Backend != BackendLocal {
		t.Fatalf("expected default backend %q, got %q", BackendLocal, s.Backend)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s := Settings{WalletPrivateKeyHex: "deadbeef", Backend: BackendS3, ScratchpadSize: 1024, BucketName: "my-bucket"}

	if err := Save(path, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != s {
		t.Fatalf("expected round-tripped settings %+v, got %+v", s, got)
	}
}
