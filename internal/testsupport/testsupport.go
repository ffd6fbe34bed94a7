// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"parcelwatch/internal/config"
	"parcelwatch/internal/parcel"
)

// NewConfig returns a default configuration rooted in a per-test temporary
// directory.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Gmail.CredentialsPath = filepath.Join(base, "credentials.json")
	cfg.Gmail.TokenPath = filepath.Join(base, "token.json")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("create test directories: %v", err)
	}
	return &cfg
}

// MustOpenStore opens a parcel store for cfg and registers cleanup.
func MustOpenStore(t *testing.T, cfg *config.Config) *parcel.Store {
	t.Helper()

	store, err := parcel.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}
