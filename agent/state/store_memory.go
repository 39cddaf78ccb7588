package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. It is the store used when no
// database is configured and in tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logs     map[string][]Message
	handoffs []HandoffNote
	now      func() time.Time
}

var (
	_ Store      = (*MemoryStore)(nil)
	_ Transactor = (*MemoryStore)(nil)
)

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	o := applyStoreOptions(opts)
	return &MemoryStore{
		sessions: make(map[string]*Session),
		logs:     make(map[string][]Message),
		now:      o.now,
	}
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, key Key) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryTx{s}.GetOrCreate(ctx, key)
}

func (s *MemoryStore) UpdateStage(ctx context.Context, key Key, stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryTx{s}.UpdateStage(ctx, key, stage)
}

func (s *MemoryStore) UpdateClassification(ctx context.Context, key Key, c Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryTx{s}.UpdateClassification(ctx, key, c)
}

func (s *MemoryStore) MergeAnswers(ctx context.Context, key Key, answers map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryTx{s}.MergeAnswers(ctx, key, answers)
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryTx{s}.AppendMessage(ctx, msg)
}

func (s *MemoryStore) RecentMessages(ctx context.Context, key Key, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryTx{s}.RecentMessages(ctx, key, limit)
}

func (s *MemoryStore) LatestAgent(ctx context.Context, tenantID, leadID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryTx{s}.LatestAgent(ctx, tenantID, leadID)
}

func (s *MemoryStore) Reset(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryTx{s}.Reset(ctx, key)
}

func (s *MemoryStore) SaveHandoff(ctx context.Context, note HandoffNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryTx{s}.SaveHandoff(ctx, note)
}

// Handoffs returns the newest notes addressed to agentID, oldest first.
func (s *MemoryStore) Handoffs(ctx context.Context, tenantID, leadID, agentID string, limit int) ([]HandoffNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryTx{s}.Handoffs(ctx, tenantID, leadID, agentID, limit)
}

// InTx holds the store lock while fn runs and restores the previous contents
// when fn fails.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, memoryTx{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	sessions map[string]*Session
	logs     map[string][]Message
	handoffs int
}

func (s *MemoryStore) snapshot() memorySnapshot {
	snap := memorySnapshot{
		sessions: make(map[string]*Session, len(s.sessions)),
		logs:     make(map[string][]Message, len(s.logs)),
		handoffs: len(s.handoffs),
	}
	for k, st := range s.sessions {
		snap.sessions[k] = st.Clone()
	}
	for k, msgs := range s.logs {
		snap.logs[k] = append([]Message(nil), msgs...)
	}
	return snap
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.sessions = snap.sessions
	s.logs = snap.logs
	s.handoffs = s.handoffs[:snap.handoffs]
}

/* ---- locked view ---- */

// memoryTx is the store seen with s.mu already held.
type memoryTx struct {
	s *MemoryStore
}

var (
	_ Store      = memoryTx{}
	_ Transactor = memoryTx{}
)

func (t memoryTx) GetOrCreate(ctx context.Context, key Key) (*Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if st, ok := t.s.sessions[key.String()]; ok {
		return st.Clone(), nil
	}

	st := NewSession(key, t.s.now())
	t.s.sessions[key.String()] = st
	return st.Clone(), nil
}

func (t memoryTx) UpdateStage(ctx context.Context, key Key, stage Stage) error {
	if !stage.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStage, stage)
	}
	return t.mutate(key, func(st *Session) {
		st.Stage = stage
	})
}

func (t memoryTx) UpdateClassification(ctx context.Context, key Key, c Classification) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidClassification, c)
	}
	return t.mutate(key, func(st *Session) {
		st.Classification = c
	})
}

func (t memoryTx) MergeAnswers(ctx context.Context, key Key, answers map[string]any) error {
	if len(answers) == 0 {
		return key.Validate()
	}
	return t.mutate(key, func(st *Session) {
		st.MergeAnswers(answers)
	})
}

func (t memoryTx) AppendMessage(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	key := messageKey(msg)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = t.s.now().UTC()
	}
	t.s.logs[key.logKey()] = append(t.s.logs[key.logKey()], msg)
	return nil
}

func (t memoryTx) RecentMessages(ctx context.Context, key Key, limit int) ([]Message, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)

	all := t.s.logs[key.logKey()]
	ordered := make([]Message, len(all))
	copy(ordered, all)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})
	if len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered, nil
}

func (t memoryTx) LatestAgent(ctx context.Context, tenantID, leadID string) (string, error) {
	key := NewKey(leadID, tenantID, "")
	if key.Legacy() {
		return "", nil
	}

	var (
		agentID string
		latest  time.Time
	)
	for _, m := range t.s.logs[key.logKey()] {
		if m.AgentID != "" && !m.Timestamp.Before(latest) {
			agentID, latest = m.AgentID, m.Timestamp
		}
	}
	return agentID, nil
}

func (t memoryTx) Reset(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	st, ok := t.s.sessions[key.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	st.Stage = InitialStage
	st.Classification = ClassificationCold
	st.Answers = make(map[string]any, 4)
	st.Touch(t.s.now())

	kept := t.s.logs[key.logKey()][:0]
	for _, m := range t.s.logs[key.logKey()] {
		if !key.Legacy() && m.AgentID != key.AgentID {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		delete(t.s.logs, key.logKey())
	} else {
		t.s.logs[key.logKey()] = kept
	}
	return nil
}

func (t memoryTx) SaveHandoff(ctx context.Context, note HandoffNote) error {
	if note.TenantID == "" || note.LeadID == "" || note.ToAgentID == "" {
		return fmt.Errorf("%w: handoff note requires tenant, lead and target agent", ErrInvalidKey)
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = t.s.now().UTC()
	}
	t.s.handoffs = append(t.s.handoffs, note)
	return nil
}

func (t memoryTx) Handoffs(ctx context.Context, tenantID, leadID, agentID string, limit int) ([]HandoffNote, error) {
	var out []HandoffNote
	for _, n := range t.s.handoffs {
		if n.TenantID == tenantID && n.LeadID == leadID && n.ToAgentID == agentID {
			out = append(out, n)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// InTx joins the transaction already in progress.
func (t memoryTx) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, t)
}

func (t memoryTx) mutate(key Key, fn func(*Session)) error {
	if err := key.Validate(); err != nil {
		return err
	}

	st, ok := t.s.sessions[key.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	fn(st)
	st.Touch(t.s.now())
	return nil
}
