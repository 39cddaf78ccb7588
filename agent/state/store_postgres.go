package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type PostgresConfig struct {
	URL         string        `envconfig:"URL"`
	DialTimeout time.Duration `split_words:"true" default:"5s"`
	MaxOpenConn int           `split_words:"true" default:"10"`
}

// Enabled reports whether a database url is configured.
func (c PostgresConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

// OpenPostgres connects bun to Postgres through pgdriver.
func OpenPostgres(cfg PostgresConfig) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.URL)
	if dsn == "" {
		return nil, errors.New("database url is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
	))
	if cfg.MaxOpenConn > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

/* --------------------------------- Rows --------------------------------- */

type legacySessionRow struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	UserID             string         `bun:"user_id,pk"`
	CurrentState       string         `bun:"current_state,notnull"`
	LeadClassification string         `bun:"lead_classification,notnull"`
	SpinAnswers        map[string]any `bun:"spin_answers,type:jsonb"`
	CreatedAt          time.Time      `bun:"created_at,notnull"`
	UpdatedAt          time.Time      `bun:"updated_at,notnull"`
}

type legacyLogRow struct {
	bun.BaseModel `bun:"table:conversation_log,alias:cl"`

	ID          int64     `bun:"id,pk,autoincrement"`
	UserID      string    `bun:"user_id,notnull"`
	Role        string    `bun:"role,notnull"`
	ContentType string    `bun:"content_type,notnull"`
	Content     string    `bun:"content,notnull"`
	Timestamp   time.Time `bun:"timestamp,notnull"`
}

type conversationRow struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	TenantID           string         `bun:"tenant_id,pk"`
	AgentID            string         `bun:"agent_id,pk"`
	LeadID             string         `bun:"lead_id,pk"`
	State              string         `bun:"state,notnull"`
	LeadClassification string         `bun:"lead_classification,notnull"`
	SpinAnswers        map[string]any `bun:"spin_answers,type:jsonb"`
	CreatedAt          time.Time      `bun:"created_at,notnull"`
	UpdatedAt          time.Time      `bun:"updated_at,notnull"`
}

type tenantLogRow struct {
	bun.BaseModel `bun:"table:tenant_conversation_log,alias:tl"`

	ID          int64     `bun:"id,pk,autoincrement"`
	TenantID    string    `bun:"tenant_id,notnull"`
	AgentID     string    `bun:"agent_id,notnull"`
	LeadID      string    `bun:"lead_id,notnull"`
	Role        string    `bun:"role,notnull"`
	ContentType string    `bun:"content_type,notnull"`
	Content     string    `bun:"content,notnull"`
	Timestamp   time.Time `bun:"timestamp,notnull"`
}

type sharedMemoryRow struct {
	bun.BaseModel `bun:"table:tenant_shared_memory,alias:sm"`

	ID            string    `bun:"id,pk"`
	TenantID      string    `bun:"tenant_id,notnull"`
	LeadID        string    `bun:"lead_id,notnull"`
	SourceAgentID string    `bun:"source_agent_id,notnull"`
	TargetAgentID string    `bun:"target_agent_id,notnull"`
	MemoryType    string    `bun:"memory_type,notnull"`
	Reason        string    `bun:"reason"`
	Content       string    `bun:"content"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

const memoryTypeHandoff = "handoff_summary"

/* --------------------------------- Store -------------------------------- */

// PostgresStore persists sessions with bun. Legacy keys use the sessions and
// conversation_log tables; tenant keys use conversations and
// tenant_conversation_log.
type PostgresStore struct {
	db  bun.IDB
	now func() time.Time
}

var (
	_ Store      = (*PostgresStore)(nil)
	_ Transactor = (*PostgresStore)(nil)
)

func NewPostgresStore(db *bun.DB, opts ...StoreOption) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	o := applyStoreOptions(opts)
	return &PostgresStore{db: db, now: o.now}, nil
}

// InitSchema creates the tables and indexes the store relies on.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	models := []any{
		(*legacySessionRow)(nil),
		(*legacyLogRow)(nil),
		(*conversationRow)(nil),
		(*tenantLogRow)(nil),
		(*sharedMemoryRow)(nil),
	}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table %T: %w", m, err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*legacyLogRow)(nil), "idx_conversation_log_user_ts", []string{"user_id", "timestamp"}},
		{(*tenantLogRow)(nil), "idx_tenant_log_lead_ts", []string{"tenant_id", "lead_id", "timestamp"}},
		{(*sharedMemoryRow)(nil), "idx_shared_memory_target", []string{"tenant_id", "lead_id", "target_agent_id"}},
	}
	for _, idx := range indexes {
		if _, err := s.db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, key Key) (*Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()

	if key.Legacy() {
		row := &legacySessionRow{
			UserID:             key.LeadID,
			CurrentState:       string(InitialStage),
			LeadClassification: string(ClassificationCold),
			SpinAnswers:        map[string]any{},
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if _, err := s.db.NewInsert().Model(row).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
			return nil, fmt.Errorf("insert legacy session: %w", err)
		}

		var loaded legacySessionRow
		if err := s.db.NewSelect().Model(&loaded).Where("user_id = ?", key.LeadID).Limit(1).Scan(ctx); err != nil {
			return nil, fmt.Errorf("select legacy session: %w", err)
		}
		return sessionFromRow(key, loaded.CurrentState, loaded.LeadClassification, loaded.SpinAnswers, loaded.CreatedAt, loaded.UpdatedAt)
	}

	row := &conversationRow{
		TenantID:           key.TenantID,
		AgentID:            key.AgentID,
		LeadID:             key.LeadID,
		State:              string(InitialStage),
		LeadClassification: string(ClassificationCold),
		SpinAnswers:        map[string]any{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if _, err := s.db.NewInsert().Model(row).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	var loaded conversationRow
	if err := s.db.NewSelect().
		Model(&loaded).
		Where("tenant_id = ?", key.TenantID).
		Where("agent_id = ?", key.AgentID).
		Where("lead_id = ?", key.LeadID).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	return sessionFromRow(key, loaded.State, loaded.LeadClassification, loaded.SpinAnswers, loaded.CreatedAt, loaded.UpdatedAt)
}

func (s *PostgresStore) UpdateStage(ctx context.Context, key Key, stage Stage) error {
	if !stage.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStage, stage)
	}
	column := "state"
	if key.Legacy() {
		column = "current_state"
	}
	return s.update(ctx, key, column+" = ?", string(stage))
}

func (s *PostgresStore) UpdateClassification(ctx context.Context, key Key, c Classification) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidClassification, c)
	}
	return s.update(ctx, key, "lead_classification = ?", string(c))
}

// MergeAnswers overlays answers in one statement using the jsonb || operator.
func (s *PostgresStore) MergeAnswers(ctx context.Context, key Key, answers map[string]any) error {
	if len(answers) == 0 {
		return key.Validate()
	}
	payload, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	return s.update(ctx, key, "spin_answers = COALESCE(spin_answers, '{}'::jsonb) || ?::jsonb", string(payload))
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	key := messageKey(msg)

	var model any
	if key.Legacy() {
		model = &legacyLogRow{
			UserID:      key.LeadID,
			Role:        string(msg.Role),
			ContentType: string(msg.ContentType),
			Content:     msg.Content,
			Timestamp:   msg.Timestamp.UTC(),
		}
	} else {
		model = &tenantLogRow{
			TenantID:    key.TenantID,
			AgentID:     key.AgentID,
			LeadID:      key.LeadID,
			Role:        string(msg.Role),
			ContentType: string(msg.ContentType),
			Content:     msg.Content,
			Timestamp:   msg.Timestamp.UTC(),
		}
	}

	if _, err := s.db.NewInsert().Model(model).Returning("NULL").Exec(ctx); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, key Key, limit int) ([]Message, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)

	var out []Message
	if key.Legacy() {
		var rows []legacyLogRow
		if err := s.db.NewSelect().
			Model(&rows).
			Where("user_id = ?", key.LeadID).
			Order("timestamp DESC", "id DESC").
			Limit(limit).
			Scan(ctx); err != nil {
			return nil, fmt.Errorf("select conversation log: %w", err)
		}
		out = make([]Message, 0, len(rows))
		for i := len(rows) - 1; i >= 0; i-- {
			r := rows[i]
			out = append(out, Message{
				LeadID:      r.UserID,
				Role:        Role(r.Role),
				Content:     r.Content,
				ContentType: ContentType(r.ContentType),
				Timestamp:   r.Timestamp.UTC(),
			})
		}
		return out, nil
	}

	var rows []tenantLogRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", key.TenantID).
		Where("lead_id = ?", key.LeadID).
		Order("timestamp DESC", "id DESC").
		Limit(limit).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("select tenant conversation log: %w", err)
	}
	out = make([]Message, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		out = append(out, Message{
			TenantID:    r.TenantID,
			AgentID:     r.AgentID,
			LeadID:      r.LeadID,
			Role:        Role(r.Role),
			Content:     r.Content,
			ContentType: ContentType(r.ContentType),
			Timestamp:   r.Timestamp.UTC(),
		})
	}
	return out, nil
}

func (s *PostgresStore) LatestAgent(ctx context.Context, tenantID, leadID string) (string, error) {
	key := NewKey(leadID, tenantID, "")
	if key.Legacy() {
		return "", nil
	}

	var agentID string
	err := s.db.NewSelect().
		Model((*tenantLogRow)(nil)).
		Column("agent_id").
		Where("tenant_id = ?", key.TenantID).
		Where("lead_id = ?", key.LeadID).
		Where("agent_id <> ''").
		Order("timestamp DESC", "id DESC").
		Limit(1).
		Scan(ctx, &agentID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select latest agent: %w", err)
	}
	return agentID, nil
}

func (s *PostgresStore) Reset(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	now := s.now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if key.Legacy() {
			res, err := tx.NewUpdate().
				Model((*legacySessionRow)(nil)).
				Set("current_state = ?", string(InitialStage)).
				Set("lead_classification = ?", string(ClassificationCold)).
				Set("spin_answers = '{}'::jsonb").
				Set("updated_at = ?", now).
				Where("user_id = ?", key.LeadID).
				Exec(ctx)
			if err := checkAffected(res, err, key); err != nil {
				return err
			}
			if _, err := tx.NewDelete().Model((*legacyLogRow)(nil)).Where("user_id = ?", key.LeadID).Exec(ctx); err != nil {
				return fmt.Errorf("purge conversation log: %w", err)
			}
			return nil
		}

		res, err := tx.NewUpdate().
			Model((*conversationRow)(nil)).
			Set("state = ?", string(InitialStage)).
			Set("lead_classification = ?", string(ClassificationCold)).
			Set("spin_answers = '{}'::jsonb").
			Set("updated_at = ?", now).
			Where("tenant_id = ?", key.TenantID).
			Where("agent_id = ?", key.AgentID).
			Where("lead_id = ?", key.LeadID).
			Exec(ctx)
		if err := checkAffected(res, err, key); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*tenantLogRow)(nil)).
			Where("tenant_id = ?", key.TenantID).
			Where("agent_id = ?", key.AgentID).
			Where("lead_id = ?", key.LeadID).
			Exec(ctx); err != nil {
			return fmt.Errorf("purge tenant conversation log: %w", err)
		}
		return nil
	})
}

// InTx runs fn on a store bound to one database transaction. Inside a
// transaction it nests as a savepoint.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &PostgresStore{db: tx, now: s.now})
	})
}

func (s *PostgresStore) SaveHandoff(ctx context.Context, note HandoffNote) error {
	if note.TenantID == "" || note.LeadID == "" || note.ToAgentID == "" || note.ID == "" {
		return fmt.Errorf("%w: handoff note requires id, tenant, lead and target agent", ErrInvalidKey)
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = s.now()
	}
	row := &sharedMemoryRow{
		ID:            note.ID,
		TenantID:      note.TenantID,
		LeadID:        note.LeadID,
		SourceAgentID: note.FromAgentID,
		TargetAgentID: note.ToAgentID,
		MemoryType:    memoryTypeHandoff,
		Reason:        note.Reason,
		Content:       note.Summary,
		CreatedAt:     note.CreatedAt.UTC(),
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert handoff note: %w", err)
	}
	return nil
}

func (s *PostgresStore) Handoffs(ctx context.Context, tenantID, leadID, agentID string, limit int) ([]HandoffNote, error) {
	var rows []sharedMemoryRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		Where("lead_id = ?", leadID).
		Where("target_agent_id = ?", agentID).
		Where("memory_type = ?", memoryTypeHandoff).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("select handoff notes: %w", err)
	}

	out := make([]HandoffNote, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		out = append(out, HandoffNote{
			ID:          r.ID,
			TenantID:    r.TenantID,
			LeadID:      r.LeadID,
			FromAgentID: r.SourceAgentID,
			ToAgentID:   r.TargetAgentID,
			Reason:      r.Reason,
			Summary:     r.Content,
			CreatedAt:   r.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (s *PostgresStore) update(ctx context.Context, key Key, set string, arg any) error {
	if err := key.Validate(); err != nil {
		return err
	}
	now := s.now().UTC()

	var q *bun.UpdateQuery
	if key.Legacy() {
		q = s.db.NewUpdate().
			Model((*legacySessionRow)(nil)).
			Set(set, arg).
			Set("updated_at = ?", now).
			Where("user_id = ?", key.LeadID)
	} else {
		q = s.db.NewUpdate().
			Model((*conversationRow)(nil)).
			Set(set, arg).
			Set("updated_at = ?", now).
			Where("tenant_id = ?", key.TenantID).
			Where("agent_id = ?", key.AgentID).
			Where("lead_id = ?", key.LeadID)
	}
	res, err := q.Exec(ctx)
	return checkAffected(res, err, key)
}

func checkAffected(res sql.Result, err error, key Key) error {
	if err != nil {
		return fmt.Errorf("update session %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return nil
}

func sessionFromRow(key Key, stage, classification string, answers map[string]any, createdAt, updatedAt time.Time) (*Session, error) {
	st := &Session{
		Key:            key,
		Stage:          Stage(stage),
		Classification: Classification(classification),
		Answers:        answers,
		CreatedAt:      createdAt.UTC(),
		UpdatedAt:      updatedAt.UTC(),
	}
	if parsed, ok := ParseStage(stage); ok {
		st.Stage = parsed
	}
	if parsed, ok := ParseClassification(classification); ok {
		st.Classification = parsed
	}
	if st.Answers == nil {
		st.Answers = make(map[string]any, 4)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session loaded from store: %w", err)
	}
	return st, nil
}
