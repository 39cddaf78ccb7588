package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/uptrace/bun"

	"github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/buffer"
	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	"github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/directory"
	"github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/ingress"
	"github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/knowledge"
	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
	configx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/pkg/config"
	qstashx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/pkg/qstash"
)

type DirectoryConfig struct {
	// StaticFile is a JSON tenant list that replaces the database directory.
	StaticFile string `split_words:"true"`
}

/* ------------------------------- Resources ------------------------------ */

type resources struct {
	db        *bun.DB
	redis     *redis.Client
	sessions  statex.Store
	directory contractx.AgentDirectory
}

func openResources(ctx context.Context) (*resources, error) {
	res := &resources{}

	dbCfg := configx.MustNew[statex.PostgresConfig]("DATABASE")
	if dbCfg.Enabled() {
		db, err := statex.OpenPostgres(*dbCfg)
		if err != nil {
			return nil, err
		}
		res.db = db

		store, err := statex.NewPostgresStore(db)
		if err != nil {
			res.Close()
			return nil, err
		}
		if err := store.InitSchema(ctx); err != nil {
			res.Close()
			return nil, fmt.Errorf("init session schema: %w", err)
		}
		res.sessions = store

		dir, err := directory.NewPostgresDirectory(db)
		if err != nil {
			res.Close()
			return nil, err
		}
		res.directory = dir
	} else {
		log.Warn().Msg("session_store_in_memory")
		res.sessions = statex.NewMemoryStore()
	}

	dirCfg := configx.MustNew[DirectoryConfig]("DIRECTORY")
	if path := strings.TrimSpace(dirCfg.StaticFile); path != "" {
		dir, err := directory.LoadStaticFile(afero.NewOsFs(), path)
		if err != nil {
			res.Close()
			return nil, err
		}
		res.directory = dir
	}

	redisCfg := configx.MustNew[buffer.RedisConfig]("REDIS")
	if strings.TrimSpace(redisCfg.URL) != "" {
		client, err := buffer.NewRedisClient(*redisCfg)
		if err != nil {
			res.Close()
			return nil, err
		}
		res.redis = client
	}

	return res, nil
}

func (r *resources) Close() {
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("redis_close_failed")
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			log.Warn().Err(err).Msg("database_close_failed")
		}
	}
}

/* ------------------------------- Knowledge ------------------------------ */

func newResolver(ctx context.Context, res *resources) *knowledge.Resolver {
	cfg := configx.MustNew[knowledge.Config]("KNOWLEDGE")
	fsys := afero.NewOsFs()
	folders := knowledge.NewAferoFolderSource(fsys, cfg.Root, cfg.CacheTTL)
	opts := []knowledge.ResolverOption{knowledge.WithFolderSource(folders)}

	backend := strings.ToLower(strings.TrimSpace(cfg.VectorBackend))
	if backend == "" {
		return knowledge.NewResolver(*cfg, opts...)
	}

	embedder, err := knowledge.NewOpenAIEmbedder(*configx.MustNew[knowledge.EmbeddingConfig]("EMBEDDING"))
	if err != nil {
		log.Warn().Err(err).Str("backend", backend).Msg("vector_index_disabled")
		return knowledge.NewResolver(*cfg, opts...)
	}

	var index knowledge.VectorIndex
	switch backend {
	case "pgvector":
		if res.db == nil {
			err = errors.New("pgvector requires DATABASE_URL")
			break
		}
		index, err = knowledge.NewPgVectorIndex(res.db)
	case "chromem":
		var mem *knowledge.ChromemIndex
		if mem, err = knowledge.NewChromemIndex(embedder); err != nil {
			break
		}
		// The in-process index starts empty; each directory under the
		// knowledge root is one tenant's documents.
		var n int
		if n, err = knowledge.IndexFolders(ctx, fsys, cfg.Root, folders, mem); err != nil {
			break
		}
		log.Info().Str("root", cfg.Root).Int("chunks", n).Msg("knowledge_index_loaded")
		index = mem
	default:
		err = fmt.Errorf("unknown vector backend %q", backend)
	}
	if err != nil {
		log.Warn().Err(err).Str("backend", backend).Msg("vector_index_disabled")
		return knowledge.NewResolver(*cfg, opts...)
	}

	opts = append(opts, knowledge.WithVectorIndex(index, embedder))
	return knowledge.NewResolver(*cfg, opts...)
}

/* -------------------------------- Replies ------------------------------- */

func newReplier() (contractx.Replier, error) {
	cfg := configx.MustNew[ingress.WebhookConfig]("REPLY_WEBHOOK")
	if !cfg.Enabled() {
		return ingress.LogReplier{}, nil
	}
	return ingress.NewWebhookReplier(*cfg, nil)
}

/* ------------------------------- Buffering ------------------------------ */

// scheduler owns the buffering mode picked at start-up and the poller it
// may run.
type scheduler struct {
	mode           buffer.Mode
	inner          buffer.Scheduler
	handlerOptions []ingress.HandlerOption

	stopPoller context.CancelFunc
	pollerDone chan struct{}
}

func newScheduler(ctx context.Context, res *resources, ing *ingress.Ingress) (*scheduler, error) {
	cfg := configx.MustNew[buffer.Config]("MESSAGE_BUFFER")
	mode := buffer.Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	s := &scheduler{mode: mode}

	switch mode {
	case buffer.ModeOff:
		s.use(ing, buffer.Immediate{Flush: ing.Flush})
		return s, nil
	case buffer.ModeLocal, buffer.ModeDistributed, buffer.ModeServerless:
	default:
		return nil, fmt.Errorf("unknown message buffer mode %q", cfg.Mode)
	}

	store, err := listStore(mode, res.redis)
	if err != nil {
		return nil, err
	}
	if store == nil {
		log.Warn().Str("mode", string(mode)).Msg("message_buffer_unconfigured")
		s.mode = buffer.ModeOff
		return s, nil
	}

	mb, err := buffer.NewMessageBuffer(store, buffer.NewPolicy(*cfg), buffer.WithKeyPrefix(cfg.KeyPrefix))
	if err != nil {
		return nil, err
	}

	if mode == buffer.ModeLocal {
		d, err := buffer.NewDebouncer(mb, ing.Flush)
		if err != nil {
			return nil, err
		}
		s.use(ing, d)
		return s, nil
	}

	if res.redis == nil {
		return nil, fmt.Errorf("%s buffer mode requires REDIS_URL for the flush queue", mode)
	}
	queue, err := buffer.NewFlushQueue(res.redis, cfg.KeyPrefix)
	if err != nil {
		return nil, err
	}

	opts := []buffer.DispatcherOption{
		buffer.WithPolling(cfg.PollInterval, cfg.PollBatch),
		buffer.WithMetaGrace(cfg.MetaGrace),
	}

	var client *qstashx.Client
	if mode == buffer.ModeServerless {
		qcfg := configx.MustNew[qstashx.Config]("QSTASH")
		if !qcfg.Enabled() {
			return nil, errors.New("serverless buffer mode requires QSTASH_TOKEN")
		}
		client, err = qstashx.NewClient(*qcfg)
		if err != nil {
			return nil, err
		}
		notifier, err := buffer.NewQStashNotifier(client, cfg.CallbackURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, buffer.WithNotifier(notifier))
	}

	d, err := buffer.NewDispatcher(mb, queue, ing.Flush, opts...)
	if err != nil {
		return nil, err
	}
	s.use(ing, d)

	if mode == buffer.ModeServerless {
		s.handlerOptions = append(s.handlerOptions, ingress.WithFlushCallback(d, client, cfg.CallbackURL))
		return s, nil
	}

	pollCtx, cancel := context.WithCancel(ctx)
	s.stopPoller = cancel
	s.pollerDone = make(chan struct{})
	go func() {
		defer close(s.pollerDone)
		if err := d.Run(pollCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("flush_poller_stopped")
		}
	}()
	return s, nil
}

func (s *scheduler) use(ing *ingress.Ingress, inner buffer.Scheduler) {
	s.inner = inner
	ing.UseScheduler(inner)
}

func (s *scheduler) Close() error {
	if s.stopPoller != nil {
		s.stopPoller()
		<-s.pollerDone
	}
	if s.inner == nil {
		return nil
	}
	return s.inner.Close()
}

// listStore prefers the Upstash REST API in serverless mode and a direct
// Redis connection otherwise. It returns nil when neither is configured.
func listStore(mode buffer.Mode, rdb *redis.Client) (buffer.ListStore, error) {
	upstash := configx.MustNew[buffer.UpstashConfig]("UPSTASH_REDIS")
	if upstash.Enabled() && (mode == buffer.ModeServerless || rdb == nil) {
		return buffer.NewUpstashStore(*upstash)
	}
	if rdb != nil {
		return buffer.NewRedisStore(rdb)
	}
	return nil, nil
}
