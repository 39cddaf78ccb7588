package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
)

// StaticTenant is one tenant entry of a directory file.
type StaticTenant struct {
	ID            string                      `json:"id"`
	Name          string                      `json:"name"`
	DriveFolderID string                      `json:"drive_folder_id"`
	Agents        []contractx.AgentDescriptor `json:"agents"`
}

// StaticDirectory serves a fixed roster, for single-node deployments and
// tests.
type StaticDirectory struct {
	tenants map[string]contractx.Tenant
	agents  map[string][]contractx.AgentDescriptor
}

var _ contractx.AgentDirectory = (*StaticDirectory)(nil)

func NewStaticDirectory(tenants []StaticTenant) *StaticDirectory {
	d := &StaticDirectory{
		tenants: make(map[string]contractx.Tenant, len(tenants)),
		agents:  make(map[string][]contractx.AgentDescriptor, len(tenants)),
	}
	for _, t := range tenants {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			continue
		}
		d.tenants[id] = contractx.Tenant{ID: id, Name: t.Name, DriveFolderID: strings.TrimSpace(t.DriveFolderID)}

		agents := make([]contractx.AgentDescriptor, 0, len(t.Agents))
		for _, a := range t.Agents {
			a.TenantID = id
			agents = append(agents, a)
		}
		d.agents[id] = agents
	}
	return d
}

// LoadStaticFile reads a JSON array of StaticTenant from path.
func LoadStaticFile(fs afero.Fs, path string) (*StaticDirectory, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	var tenants []StaticTenant
	if err := json.Unmarshal(raw, &tenants); err != nil {
		return nil, fmt.Errorf("decode directory file: %w", err)
	}
	return NewStaticDirectory(tenants), nil
}

func (d *StaticDirectory) Tenant(ctx context.Context, tenantID string) (contractx.Tenant, error) {
	t, ok := d.tenants[strings.TrimSpace(tenantID)]
	if !ok {
		return contractx.Tenant{}, fmt.Errorf("%w: %s", contractx.ErrTenantNotFound, tenantID)
	}
	return t, nil
}

func (d *StaticDirectory) Agents(ctx context.Context, tenantID string) ([]contractx.AgentDescriptor, error) {
	agents := d.agents[strings.TrimSpace(tenantID)]
	return append([]contractx.AgentDescriptor(nil), agents...), nil
}
