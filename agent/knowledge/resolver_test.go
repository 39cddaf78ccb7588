package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

type fakeFolders struct {
	content map[string]string
	err     error
	loaded  []string
}

func (f *fakeFolders) Load(_ context.Context, folderID string) (string, error) {
	f.loaded = append(f.loaded, folderID)
	if f.err != nil {
		return "", f.err
	}
	return f.content[folderID], nil
}

type fakeIndex struct {
	has       bool
	hasErr    error
	chunks    []string
	nearErr   error
	gotK      int
	gotTenant string
}

func (f *fakeIndex) HasDocuments(context.Context, string) (bool, error) {
	return f.has, f.hasErr
}

func (f *fakeIndex) Nearest(_ context.Context, tenantID string, _ []float32, k int) ([]string, error) {
	f.gotK, f.gotTenant = k, tenantID
	return f.chunks, f.nearErr
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v := make([]float32, 8)
	for i, r := range text {
		v[i%len(v)] += float32(r % 31)
	}
	v[0] += 1
	return v, nil
}

const paymentBlock = "Para finalizar a compra envie o link de pagamento ao cliente após a confirmação do plano."

func TestResolverPrecedence(t *testing.T) {
	t.Parallel()

	folders := &fakeFolders{content: map[string]string{
		"tenant-folder": "Tenant: o plano premium inclui suporte dedicado e treinamento completo da equipe.",
		"global":        "Global: o plano premium inclui suporte dedicado e treinamento completo da equipe.",
	}}
	index := &fakeIndex{has: true, chunks: []string{"chunk"}}
	embedder := &fakeEmbedder{}

	ctx := context.Background()
	r := NewResolver(Config{DriveFolderID: "global"}, WithFolderSource(folders), WithVectorIndex(index, embedder))

	got := r.Resolve(ctx, Query{TenantID: "T", FolderOverride: "tenant-folder", Text: "plano premium"})
	if !strings.HasPrefix(got, "Tenant:") {
		t.Fatalf("Resolve() with override = %q", got)
	}

	got = r.Resolve(ctx, Query{TenantID: "T", Text: "plano premium"})
	if !strings.HasPrefix(got, "Global:") {
		t.Fatalf("Resolve() with global folder = %q", got)
	}
	if embedder.calls != 0 {
		t.Fatalf("embedder called %d times while a folder was configured", embedder.calls)
	}

	r = NewResolver(Config{TopK: 3}, WithFolderSource(folders), WithVectorIndex(index, embedder))
	got = r.Resolve(ctx, Query{TenantID: "T", Text: "plano premium"})
	if got != vectorPrefix+"chunk" {
		t.Fatalf("Resolve() with vector index = %q", got)
	}
	if index.gotK != 3 || index.gotTenant != "T" {
		t.Fatalf("Nearest() k=%d tenant=%q", index.gotK, index.gotTenant)
	}

	r = NewResolver(Config{})
	if got := r.Resolve(ctx, Query{TenantID: "T", Text: "oi"}); got != FallbackNotConfigured {
		t.Fatalf("Resolve() with nothing configured = %q", got)
	}
}

func TestResolverAugmentsCloseStageQuery(t *testing.T) {
	t.Parallel()

	folders := &fakeFolders{content: map[string]string{
		"f": "Nossa história começou há vinte anos com uma pequena loja no centro.\n\n" + paymentBlock,
	}}
	r := NewResolver(Config{}, WithFolderSource(folders))

	got := r.Resolve(context.Background(), Query{FolderOverride: "f", Text: "ok fechado", Stage: statex.StageClose})
	if got != paymentBlock {
		t.Fatalf("Resolve() at close = %q, want the payment block", got)
	}
}

func TestResolverDegradesOnFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	boom := errors.New("boom")

	tests := []struct {
		name string
		r    *Resolver
		want string
	}{
		{
			name: "folder load error",
			r:    NewResolver(Config{DriveFolderID: "g"}, WithFolderSource(&fakeFolders{err: boom})),
			want: FallbackUnavailable,
		},
		{
			name: "folder without source",
			r:    NewResolver(Config{DriveFolderID: "g"}),
			want: FallbackUnavailable,
		},
		{
			name: "empty folder",
			r:    NewResolver(Config{DriveFolderID: "g"}, WithFolderSource(&fakeFolders{})),
			want: FallbackNoData,
		},
		{
			name: "index check error",
			r:    NewResolver(Config{}, WithVectorIndex(&fakeIndex{hasErr: boom}, &fakeEmbedder{})),
			want: FallbackUnavailable,
		},
		{
			name: "embedding error",
			r:    NewResolver(Config{}, WithVectorIndex(&fakeIndex{has: true}, &fakeEmbedder{err: boom})),
			want: FallbackUnavailable,
		},
		{
			name: "search error",
			r:    NewResolver(Config{}, WithVectorIndex(&fakeIndex{has: true, nearErr: boom}, &fakeEmbedder{})),
			want: FallbackUnavailable,
		},
		{
			name: "no chunks",
			r:    NewResolver(Config{}, WithVectorIndex(&fakeIndex{has: true}, &fakeEmbedder{})),
			want: FallbackNoData,
		},
		{
			name: "tenant without documents",
			r:    NewResolver(Config{}, WithVectorIndex(&fakeIndex{}, &fakeEmbedder{})),
			want: FallbackNotConfigured,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.r.Resolve(ctx, Query{TenantID: "T", Text: "preço"}); got != tt.want {
				t.Fatalf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}
