package wizard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/saltyrtc/saltyrtc-go/internal/config"
)

func TestNew(t *testing.T) {
	w := New()
	if w == nil {
		t.Fatal("New() returned nil")
	}
	if w.existingCfg != nil {
		t.Error("New() returned wizard with non-nil existingCfg")
	}
}

func TestWriteConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	w := New()
	cfg := config.DefaultServerConfig()
	cfg.ListenAddress = "127.0.0.1:9001"

	if err := w.writeConfig(cfg, path); err != nil {
		t.Fatalf("writeConfig failed: %v", err)
	}

	loaded, err := config.LoadServerConfig(path)
	if err != nil {
		t.Fatalf("failed to load written config: %v", err)
	}
	if loaded.ListenAddress != "127.0.0.1:9001" {
		t.Errorf("got listen_address %q", loaded.ListenAddress)
	}
}

func TestWriteConfigInvalidPath(t *testing.T) {
	w := New()
	cfg := config.DefaultServerConfig()
	if err := w.writeConfig(cfg, filepath.Join(string(os.PathSeparator), "nonexistent-dir-xyz", "config.yaml")); err == nil {
		t.Fatal("expected error writing to an unwritable path")
	}
}
