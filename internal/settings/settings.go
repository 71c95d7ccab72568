// Package settings is the CLI-local configuration file: which wallet to
// use and which NetworkAdapter backend to talk to. A single small JSON
// record — no migrations, no store versioning.
package settings

import (
	"encoding/json"
	"fmt"
	"os"

	"mutant/internal/atomicfile"
)

// Backend names a pluggable NetworkAdapter implementation.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendS3     Backend = "s3"
	BackendAzblob Backend = "azblob"
	BackendGCS    Backend = "gcs"
)

// Settings is the persisted CLI configuration.
type Settings struct {
	WalletPrivateKeyHex string  `json:"wallet_private_key_hex"`
	Backend             Backend `json:"backend"`
	ScratchpadSize      uint32  `json:"scratchpad_size"`

	// Bucket/container name for the object-storage backends; ignored by
	// BackendLocal.
	BucketName string `json:"bucket_name,omitempty"`
}

// Default is the configuration a fresh home directory starts with.
func Default() Settings {
	return Settings{
		Backend:        BackendLocal,
		ScratchpadSize: 4 * 1024 * 1024,
	}
}

// Load reads Settings from path. A missing file is not an error: it
// returns Default().
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}

// Save writes Settings to path atomically.
func Save(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return atomicfile.Write(path, data)
}
