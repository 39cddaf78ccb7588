package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/agents/orchestrator"
	"github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/agents/sales"
	"github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/agents/supervisor"
	"github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/ingress"
	llmx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/llm"
	configx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/pkg/config"
	_ "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/pkg/logger/autoload"
)

type HTTPConfig struct {
	Addr            string        `default:":8080"`
	ReadTimeout     time.Duration `split_words:"true" default:"30s"`
	IdleTimeout     time.Duration `split_words:"true" default:"120s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("engine_exited")
	}
}

func run(ctx context.Context) error {
	httpCfg := configx.MustNew[HTTPConfig]("HTTP")
	llmCfg := configx.MustNew[llmx.Config]("LLM")
	if err := llmCfg.Validate(); err != nil {
		return err
	}

	res, err := openResources(ctx)
	if err != nil {
		return err
	}
	defer res.Close()

	completer, err := sales.NewFromConfig(ctx, *llmCfg)
	if err != nil {
		return err
	}
	router, err := supervisor.NewFromConfig(ctx, *llmCfg)
	if err != nil {
		return err
	}

	opts := []orchestrator.Option{orchestrator.WithRouter(router)}
	if res.directory != nil {
		opts = append(opts, orchestrator.WithDirectory(res.directory))
	}
	engine, err := orchestrator.New(res.sessions, completer, newResolver(ctx, res), opts...)
	if err != nil {
		return err
	}

	replier, err := newReplier()
	if err != nil {
		return err
	}
	ing, err := ingress.New(engine, replier)
	if err != nil {
		return err
	}

	sched, err := newScheduler(ctx, res, ing)
	if err != nil {
		return err
	}
	defer sched.Close()

	handler, err := ingress.NewHandler(ing, sched.handlerOptions...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:        httpCfg.Addr,
		Handler:     handler.Router(),
		ReadTimeout: httpCfg.ReadTimeout,
		IdleTimeout: httpCfg.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpCfg.Addr).Str("buffer_mode", string(sched.mode)).Msg("http_listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}
	log.Info().Msg("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http_shutdown_failed")
	}
	return nil
}
