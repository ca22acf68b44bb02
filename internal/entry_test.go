package internal

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/litlink/internal/testutil"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Vault.Path = filepath.Join(dir, "vault")
	cfg.SQLite.Path = filepath.Join(dir, "cache.db")
	cfg.Templates.SettingsPath = filepath.Join(dir, "templates.json")
	cfg.Zotero.DatabasePath = testutil.ZoteroLibrary(t)
	return cfg
}

func TestCreateNote(t *testing.T) {
	cfg := testConfig(t)
	note, err := CreateNote(context.Background(), testutil.ArticleKey, nil, true,
		WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if note.Path != "Literature/Attention Is All You Need.md" {
		t.Errorf("path = %q", note.Path)
	}

	// A second run sees the note through the cache sync.
	_, err = CreateNote(context.Background(), testutil.ArticleKey, nil, true,
		WithConfig(cfg), WithLogOutput(io.Discard))
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second create err = %v", err)
	}
}

func TestCreateNote_RequiresConfig(t *testing.T) {
	if _, err := CreateNote(context.Background(), "K", nil, false); err == nil {
		t.Error("expected error without config")
	}
}

func TestRender(t *testing.T) {
	cfg := testConfig(t)
	out, err := Render("altMdCite", []byte(`{"key": "ABCD1234", "itemType": "book", "citekey": "vaswani2017"}`),
		WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "@vaswani2017" {
		t.Errorf("output = %q", out)
	}

	if _, err := Render("bogus", []byte(`{}`), WithConfig(cfg), WithLogOutput(io.Discard)); err == nil {
		t.Error("expected unknown kind error")
	}
}
