package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
)

func newMockDirectory(t *testing.T) (*PostgresDirectory, sqlmock.Sqlmock) {
	t.Helper()

	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	dir, err := NewPostgresDirectory(db)
	require.NoError(t, err)
	return dir, mock
}

func TestPostgresDirectoryTenant(t *testing.T) {
	t.Parallel()

	dir, mock := newMockDirectory(t)
	created := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM "tenants" AS "t" WHERE \(t.id = 'tenant-1'\)`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "company_name", "settings", "created_at"}).
			AddRow("tenant-1", "Uniformes & Cia", []byte(`{"drive_folder_id":" folder-9 ","plan":"pro"}`), created),
	)

	got, err := dir.Tenant(context.Background(), " tenant-1 ")
	require.NoError(t, err)
	assert.Equal(t, contractx.Tenant{ID: "tenant-1", Name: "Uniformes & Cia", DriveFolderID: "folder-9"}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDirectoryTenantNotFound(t *testing.T) {
	t.Parallel()

	dir, mock := newMockDirectory(t)
	mock.ExpectQuery(`SELECT .* FROM "tenants"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "company_name", "settings", "created_at"}),
	)

	_, err := dir.Tenant(context.Background(), "missing")
	assert.True(t, errors.Is(err, contractx.ErrTenantNotFound), "err = %v", err)

	_, err = dir.Tenant(context.Background(), "  ")
	assert.True(t, errors.Is(err, contractx.ErrTenantNotFound), "err = %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDirectoryAgents(t *testing.T) {
	t.Parallel()

	dir, mock := newMockDirectory(t)
	created := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM "agents" AS "a" WHERE \(a.tenant_id = 'tenant-1'\) ORDER BY a.created_at ASC`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "tenant_id", "name", "niche", "prompt_custom", "active", "team_id", "delegation_allow_list", "created_at"}).
			AddRow("agent-1", "tenant-1", "Bia", "uniformes", "seja breve", true, "team-1", []byte(`["agent-2"]`), created).
			AddRow("agent-2", "tenant-1", "Carla", nil, nil, false, nil, nil, created.Add(time.Minute)),
	)

	got, err := dir.Agents(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "agent-1", got[0].ID)
	assert.Equal(t, "uniformes", got[0].Niche)
	assert.Equal(t, "seja breve", got[0].CustomInstructions)
	assert.True(t, got[0].Active)
	require.NotNil(t, got[0].TeamID)
	assert.Equal(t, "team-1", *got[0].TeamID)
	assert.Equal(t, []string{"agent-2"}, got[0].DelegationAllowList)

	assert.Equal(t, "", got[1].Niche)
	assert.False(t, got[1].Active)
	assert.Nil(t, got[1].TeamID)
	assert.Empty(t, got[1].DelegationAllowList)
	require.NoError(t, mock.ExpectationsWereMet())
}
