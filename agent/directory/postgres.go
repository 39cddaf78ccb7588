package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
)

type tenantRow struct {
	bun.BaseModel `bun:"table:tenants,alias:t"`

	ID          string         `bun:"id,pk"`
	CompanyName string         `bun:"company_name,notnull"`
	Settings    map[string]any `bun:"settings,type:jsonb"`
	CreatedAt   time.Time      `bun:"created_at,notnull"`
}

type agentRow struct {
	bun.BaseModel `bun:"table:agents,alias:a"`

	ID                  string         `bun:"id,pk"`
	TenantID            string         `bun:"tenant_id,notnull"`
	Name                string         `bun:"name,notnull"`
	Niche               sql.NullString `bun:"niche"`
	PromptCustom        sql.NullString `bun:"prompt_custom"`
	Active              bool           `bun:"active,notnull"`
	TeamID              sql.NullString `bun:"team_id"`
	DelegationAllowList []string       `bun:"delegation_allow_list,type:jsonb"`
	CreatedAt           time.Time      `bun:"created_at,notnull"`
}

// PostgresDirectory reads tenants and agents managed by the admin surface.
type PostgresDirectory struct {
	db *bun.DB
}

var _ contractx.AgentDirectory = (*PostgresDirectory)(nil)

func NewPostgresDirectory(db *bun.DB) (*PostgresDirectory, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &PostgresDirectory{db: db}, nil
}

func (d *PostgresDirectory) Tenant(ctx context.Context, tenantID string) (contractx.Tenant, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return contractx.Tenant{}, fmt.Errorf("%w: empty id", contractx.ErrTenantNotFound)
	}

	var row tenantRow
	err := d.db.NewSelect().
		Model(&row).
		Where("t.id = ?", tenantID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Tenant{}, fmt.Errorf("%w: %s", contractx.ErrTenantNotFound, tenantID)
	}
	if err != nil {
		return contractx.Tenant{}, fmt.Errorf("select tenant: %w", err)
	}

	return contractx.Tenant{
		ID:            row.ID,
		Name:          row.CompanyName,
		DriveFolderID: settingString(row.Settings, "drive_folder_id"),
	}, nil
}

// Agents returns every agent of the tenant, oldest first.
func (d *PostgresDirectory) Agents(ctx context.Context, tenantID string) ([]contractx.AgentDescriptor, error) {
	var rows []agentRow
	err := d.db.NewSelect().
		Model(&rows).
		Where("a.tenant_id = ?", strings.TrimSpace(tenantID)).
		OrderExpr("a.created_at ASC, a.id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select agents: %w", err)
	}

	out := make([]contractx.AgentDescriptor, 0, len(rows))
	for _, r := range rows {
		a := contractx.AgentDescriptor{
			ID:                  r.ID,
			TenantID:            r.TenantID,
			Name:                r.Name,
			Niche:               r.Niche.String,
			CustomInstructions:  r.PromptCustom.String,
			Active:              r.Active,
			DelegationAllowList: r.DelegationAllowList,
		}
		if r.TeamID.Valid && strings.TrimSpace(r.TeamID.String) != "" {
			team := r.TeamID.String
			a.TeamID = &team
		}
		out = append(out, a)
	}
	return out, nil
}

func settingString(settings map[string]any, key string) string {
	v, ok := settings[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
