package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
	nodex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/state"
)

var (
	ErrInvalidLead    = nodex.ErrInvalidLead
	ErrInvalidMessage = nodex.ErrInvalidMessage
)

// Orchestrator runs one conversation turn end to end. Model, retrieval and
// routing failures degrade inside the turn; persistence failures are
// returned.
type Orchestrator struct {
	sessions  statex.Store
	completer contractx.Completer
	contexts  contractx.ContextResolver
	directory contractx.AgentDirectory
	router    contractx.Router
	memory    contractx.MemoryStore
	// sharedMemory is set when handoff notes live in the session store and
	// are written in the same unit of work as the turn.
	sharedMemory bool

	historyLimit int

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

var _ contractx.TurnProcessor = (*Orchestrator)(nil)

type Option func(*Orchestrator)

// WithDirectory enables multi-tenant agent resolution.
func WithDirectory(directory contractx.AgentDirectory) Option {
	return func(o *Orchestrator) {
		o.directory = directory
	}
}

func WithRouter(router contractx.Router) Option {
	return func(o *Orchestrator) {
		o.router = router
	}
}

// WithMemory overrides where handoff notes are kept. By default the session
// store is used when it can hold them.
func WithMemory(memory contractx.MemoryStore) Option {
	return func(o *Orchestrator) {
		if memory != nil {
			o.memory = memory
			o.sharedMemory = false
		}
	}
}

func WithHistoryLimit(limit int) Option {
	return func(o *Orchestrator) {
		if limit > 0 {
			o.historyLimit = limit
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func New(
	sessions statex.Store,
	completer contractx.Completer,
	contexts contractx.ContextResolver,
	opts ...Option,
) (*Orchestrator, error) {
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if contexts == nil {
		return nil, errors.New("context resolver is required")
	}

	o := &Orchestrator{
		sessions:     sessions,
		completer:    completer,
		contexts:     contexts,
		historyLimit: statex.DefaultHistoryLimit,
		now:          time.Now,
	}
	if memory, ok := sessions.(contractx.MemoryStore); ok {
		o.memory = memory
		o.sharedMemory = true
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if ms, ok := o.memory.(*statex.MemoryStore); ok && statex.Store(ms) == sessions {
		o.sharedMemory = true
	}
	if o.memory == nil {
		o.memory = noopMemoryStore{}
	}

	graphRunner, err := o.compileProcessTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// turnMemory is the handoff store SaveTurn writes to; nil selects the
// session store's own transaction.
func (o *Orchestrator) turnMemory() contractx.MemoryStore {
	if o.sharedMemory {
		return nil
	}
	return o.memory
}

func (o *Orchestrator) ProcessTurn(ctx context.Context, req contractx.TurnRequest) (contractx.TurnResponse, error) {
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{Request: req})
	if err != nil {
		return contractx.TurnResponse{}, err
	}
	return out.Response, nil
}

type noopMemoryStore struct{}

func (noopMemoryStore) SaveHandoff(context.Context, statex.HandoffNote) error {
	return nil
}

func (noopMemoryStore) Handoffs(context.Context, string, string, string, int) ([]statex.HandoffNote, error) {
	return nil, nil
}
