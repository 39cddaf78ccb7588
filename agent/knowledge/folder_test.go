package knowledge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func newTestFolderFS(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	files := map[string]string{
		"kb/loja/precos.md":   "Plano premium: R$ 199.",
		"kb/loja/faq.txt":     "Entregamos em todo o Brasil.",
		"kb/loja/logo.png":    "binary",
		"kb/loja/vazio.txt":   "   ",
		"kb/loja/sub/x.txt":   "ignored",
		"kb/outra/sobre.json": `{"empresa":"Outra"}`,
	}
	for path, content := range files {
		if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", path, err)
		}
	}
	return fsys
}

func TestAferoFolderSourceLoad(t *testing.T) {
	t.Parallel()

	src := NewAferoFolderSource(newTestFolderFS(t), "kb", time.Minute)
	got, err := src.Load(context.Background(), "loja")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := "--- faq.txt ---\nEntregamos em todo o Brasil.\n\n--- precos.md ---\nPlano premium: R$ 199."
	if got != want {
		t.Fatalf("Load() = %q, want %q", got, want)
	}
}

func TestAferoFolderSourceCachesUntilTTL(t *testing.T) {
	t.Parallel()

	fsys := newTestFolderFS(t)
	src := NewAferoFolderSource(fsys, "kb", time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	src.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	ctx := context.Background()
	if _, err := src.Load(ctx, "outra"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := afero.WriteFile(fsys, "kb/outra/sobre.json", []byte(`{"empresa":"Nova"}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, _ := src.Load(ctx, "outra")
	if !strings.Contains(got, "Outra") {
		t.Fatalf("Load() within ttl = %q, want cached content", got)
	}

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	got, _ = src.Load(ctx, "outra")
	if !strings.Contains(got, "Nova") {
		t.Fatalf("Load() after ttl = %q, want fresh content", got)
	}
}

func TestAferoFolderSourceRejectsUnknownFolders(t *testing.T) {
	t.Parallel()

	src := NewAferoFolderSource(newTestFolderFS(t), "kb", 0)
	for _, id := range []string{"missing", "../etc", "a/b", ""} {
		if _, err := src.Load(context.Background(), id); !errors.Is(err, ErrFolderNotFound) {
			t.Fatalf("Load(%q) error = %v, want ErrFolderNotFound", id, err)
		}
	}
}
