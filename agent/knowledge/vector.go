package knowledge

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/uptrace/bun"
)

// VectorIndex is a per-tenant store of embedded document chunks.
type VectorIndex interface {
	HasDocuments(ctx context.Context, tenantID string) (bool, error)
	// Nearest returns up to k chunk texts, most similar first.
	Nearest(ctx context.Context, tenantID string, embedding []float32, k int) ([]string, error)
}

/* ---- pgvector ---- */

// PgVectorIndex reads the document_chunks table through pgvector's cosine
// distance operator.
type PgVectorIndex struct {
	db *bun.DB
}

var _ VectorIndex = (*PgVectorIndex)(nil)

func NewPgVectorIndex(db *bun.DB) (*PgVectorIndex, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &PgVectorIndex{db: db}, nil
}

func (p *PgVectorIndex) HasDocuments(ctx context.Context, tenantID string) (bool, error) {
	var exists bool
	err := p.db.NewRaw(
		"SELECT EXISTS (SELECT 1 FROM document_chunks WHERE tenant_id = ? AND embedding IS NOT NULL)",
		tenantID,
	).Scan(ctx, &exists)
	if err != nil {
		return false, fmt.Errorf("check document chunks: %w", err)
	}
	return exists, nil
}

func (p *PgVectorIndex) Nearest(ctx context.Context, tenantID string, embedding []float32, k int) ([]string, error) {
	if len(embedding) == 0 {
		return nil, errors.New("empty query embedding")
	}
	var contents []string
	err := p.db.NewRaw(
		"SELECT content FROM document_chunks WHERE tenant_id = ? AND embedding IS NOT NULL ORDER BY embedding <=> ?::vector LIMIT ?",
		tenantID, vectorLiteral(embedding), k,
	).Scan(ctx, &contents)
	if err != nil {
		return nil, fmt.Errorf("query document chunks: %w", err)
	}
	return contents, nil
}

func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

/* ---- chromem ---- */

// ChromemIndex keeps one in-process chromem collection per tenant.
type ChromemIndex struct {
	db       *chromem.DB
	embedder Embedder

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

var _ VectorIndex = (*ChromemIndex)(nil)

func NewChromemIndex(embedder Embedder) (*ChromemIndex, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	return &ChromemIndex{
		db:          chromem.NewDB(),
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (c *ChromemIndex) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return c.embedder.Embed(ctx, text)
	}
}

func (c *ChromemIndex) collection(tenantID string, create bool) (*chromem.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if col, ok := c.collections[tenantID]; ok {
		return col, nil
	}
	if !create {
		return nil, nil
	}
	col, err := c.db.GetOrCreateCollection("tenant_"+tenantID, nil, c.embeddingFunc())
	if err != nil {
		return nil, err
	}
	c.collections[tenantID] = col
	return col, nil
}

// Index embeds and stores chunks for a tenant. Ids must be unique per tenant.
func (c *ChromemIndex) Index(ctx context.Context, tenantID string, ids, chunks []string) error {
	if len(ids) != len(chunks) {
		return fmt.Errorf("index: %d ids for %d chunks", len(ids), len(chunks))
	}
	col, err := c.collection(tenantID, true)
	if err != nil {
		return fmt.Errorf("open collection: %w", err)
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		docs = append(docs, chromem.Document{ID: ids[i], Content: chunk})
	}
	if len(docs) == 0 {
		return nil
	}
	return col.AddDocuments(ctx, docs, runtime.NumCPU())
}

func (c *ChromemIndex) HasDocuments(ctx context.Context, tenantID string) (bool, error) {
	col, err := c.collection(tenantID, false)
	if err != nil || col == nil {
		return false, err
	}
	return col.Count() > 0, nil
}

func (c *ChromemIndex) Nearest(ctx context.Context, tenantID string, embedding []float32, k int) ([]string, error) {
	col, err := c.collection(tenantID, false)
	if err != nil || col == nil {
		return nil, err
	}
	if n := col.Count(); k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	res, err := col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	out := make([]string, 0, len(res))
	for _, r := range res {
		out = append(out, r.Content)
	}
	return out, nil
}
