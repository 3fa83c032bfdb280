package main

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"finrag/internal/config"
	"finrag/internal/vectorstore/bolt"
)

func TestRun_ReleasesStoreOnFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dataset.Path = filepath.Join(t.TempDir(), "missing.json")
	cfg.Log.Level = "error"
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := config.Save(cfgPath, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"failing command", []string{"-config", cfgPath, "ingest"}, 1},
		{"missing query", []string{"-config", cfgPath, "retrieve"}, 1},
		{"unknown command", []string{"-config", cfgPath, "frobnicate"}, 1},
		{"empty store", []string{"-config", cfgPath, "retrieve", "revenue"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := run(tt.args); code != tt.code {
				t.Fatalf("exit code = %d, want %d", code, tt.code)
			}
			// The store lock must be released once run returns.
			st, err := bolt.Open(cfg.VectorStore.Bolt.Path, zaptest.NewLogger(t))
			if err != nil {
				t.Fatalf("store still locked after run: %v", err)
			}
			_ = st.Close()
		})
	}
}

func TestRun_Usage(t *testing.T) {
	if code := run(nil); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if code := run([]string{"-no-such-flag"}); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}
