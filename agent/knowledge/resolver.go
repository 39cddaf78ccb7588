package knowledge

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

const (
	FallbackNotConfigured = "CONTEXTO: A base de conhecimento não está configurada. " +
		"Não invente preços, links, modelos ou especificações. " +
		"Para dúvidas sobre produtos ou pagamento, diga que vai verificar. " +
		"Foque nas perguntas SPIN e no relacionamento consultivo."
	FallbackUnavailable = "CONTEXTO: A base de conhecimento não está disponível no momento. " +
		"Não invente preços, links ou especificações; diga que vai verificar."
	FallbackNoData = "CONTEXTO: Nenhum trecho relevante foi encontrado na base de conhecimento. " +
		"Não invente dados; diga que vai verificar."

	vectorPrefix    = "CONTEXTO (base de conhecimento):\n"
	closeQueryTerms = " link pagamento compra"
)

// Query is one grounding lookup.
type Query struct {
	TenantID       string
	FolderOverride string
	Text           string
	Stage          statex.Stage
}

// Resolver picks the knowledge source for a query and always returns a
// non-empty grounding block.
type Resolver struct {
	folders  FolderSource
	index    VectorIndex
	embedder Embedder

	globalFolder string
	topK         int
	timeout      time.Duration
}

type ResolverOption func(*Resolver)

func WithFolderSource(src FolderSource) ResolverOption {
	return func(r *Resolver) {
		r.folders = src
	}
}

func WithVectorIndex(index VectorIndex, embedder Embedder) ResolverOption {
	return func(r *Resolver) {
		r.index = index
		r.embedder = embedder
	}
}

func NewResolver(cfg Config, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		globalFolder: strings.TrimSpace(cfg.DriveFolderID),
		topK:         cfg.TopK,
		timeout:      cfg.Timeout,
	}
	if r.topK <= 0 {
		r.topK = 6
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve applies, first match wins: tenant folder override, global folder,
// tenant vector index, fixed fallback. Failures become fallback text.
func (r *Resolver) Resolve(ctx context.Context, q Query) string {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger := log.With().Str("tenant_id", q.TenantID).Str("stage", string(q.Stage)).Logger()

	if folder := strings.TrimSpace(q.FolderOverride); folder != "" {
		return r.searchFolder(ctx, folder, q)
	}
	if r.globalFolder != "" {
		return r.searchFolder(ctx, r.globalFolder, q)
	}

	if q.TenantID != "" && r.index != nil {
		has, err := r.index.HasDocuments(ctx, q.TenantID)
		if err != nil {
			logger.Warn().Err(err).Msg("knowledge_index_unavailable")
			return FallbackUnavailable
		}
		if has {
			return r.searchIndex(ctx, q)
		}
	}

	return FallbackNotConfigured
}

// ContextFor is Resolve with the query fields passed positionally.
func (r *Resolver) ContextFor(ctx context.Context, tenantID, folderOverride, text string, stage statex.Stage) string {
	return r.Resolve(ctx, Query{
		TenantID:       tenantID,
		FolderOverride: folderOverride,
		Text:           text,
		Stage:          stage,
	})
}

func (r *Resolver) searchFolder(ctx context.Context, folderID string, q Query) string {
	if r.folders == nil {
		log.Warn().Str("folder_id", folderID).Msg("knowledge_folder_source_missing")
		return FallbackUnavailable
	}

	content, err := r.folders.Load(ctx, folderID)
	if err != nil {
		log.Warn().Err(err).Str("folder_id", folderID).Msg("knowledge_folder_unavailable")
		return FallbackUnavailable
	}

	text := q.Text
	if q.Stage == statex.StageClose {
		text += closeQueryTerms
	}
	if out := SearchChunks(text, content); strings.TrimSpace(out) != "" {
		return out
	}
	return FallbackNoData
}

func (r *Resolver) searchIndex(ctx context.Context, q Query) string {
	logger := log.With().Str("tenant_id", q.TenantID).Logger()

	if strings.TrimSpace(q.Text) == "" {
		return FallbackNoData
	}
	if r.embedder == nil {
		logger.Warn().Msg("knowledge_embedder_missing")
		return FallbackUnavailable
	}

	vec, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		logger.Warn().Err(err).Msg("knowledge_embedding_failed")
		return FallbackUnavailable
	}
	chunks, err := r.index.Nearest(ctx, q.TenantID, vec, r.topK)
	if err != nil {
		logger.Warn().Err(err).Msg("knowledge_search_failed")
		return FallbackUnavailable
	}

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return FallbackNoData
	}
	return vectorPrefix + strings.Join(parts, chunkSeparator)
}
