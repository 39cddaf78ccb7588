package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
)

func TestLoadStaticFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/directory.json", []byte(`[
		{"id": "tenant-1", "name": "Loja", "drive_folder_id": "loja",
		 "agents": [
			{"id": "agent-1", "name": "Bia", "niche": "uniformes", "active": true, "team_id": "t1"},
			{"id": "agent-2", "name": "Carla", "active": true, "delegation_allow_list": ["agent-1"]}
		 ]},
		{"id": "", "name": "ignored"}
	]`), 0o644))

	dir, err := LoadStaticFile(fs, "/etc/directory.json")
	require.NoError(t, err)

	tenant, err := dir.Tenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "loja", tenant.DriveFolderID)

	agents, err := dir.Agents(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "tenant-1", agents[0].TenantID)
	require.NotNil(t, agents[0].TeamID)
	assert.Equal(t, "t1", *agents[0].TeamID)
	assert.Equal(t, []string{"agent-1"}, agents[1].DelegationAllowList)

	agents[0].Name = "mutated"
	again, err := dir.Agents(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "Bia", again[0].Name)

	_, err = dir.Tenant(context.Background(), "")
	assert.True(t, errors.Is(err, contractx.ErrTenantNotFound))
}

func TestLoadStaticFileErrors(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	_, err := LoadStaticFile(fs, "/missing.json")
	require.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/bad.json", []byte(`{"id":`), 0o644))
	_, err = LoadStaticFile(fs, "/bad.json")
	require.Error(t, err)
}
