package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// ChunkIndexer accepts embedded chunk writes for a tenant.
type ChunkIndexer interface {
	Index(ctx context.Context, tenantID string, ids, chunks []string) error
}

var _ ChunkIndexer = (*ChromemIndex)(nil)

// IndexFolders treats every directory under root as one tenant's document
// folder, loads it through source and indexes its chunks under the
// directory name. It returns the number of chunks written.
func IndexFolders(ctx context.Context, fsys afero.Fs, root string, source FolderSource, index ChunkIndexer) (int, error) {
	infos, err := afero.ReadDir(fsys, root)
	if err != nil {
		return 0, fmt.Errorf("list knowledge root %s: %w", root, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	total := 0
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}

		tenantID := info.Name()
		content, err := source.Load(ctx, tenantID)
		if err != nil {
			return total, fmt.Errorf("load %s: %w", tenantID, err)
		}
		chunks := SplitChunks(content)
		if len(chunks) == 0 {
			continue
		}

		ids := make([]string, len(chunks))
		for i := range chunks {
			ids[i] = tenantID + "-" + strconv.Itoa(i)
		}
		if err := index.Index(ctx, tenantID, ids, chunks); err != nil {
			return total, fmt.Errorf("index %s: %w", tenantID, err)
		}
		log.Debug().Str("tenant_id", tenantID).Int("chunks", len(chunks)).Msg("knowledge_folder_indexed")
		total += len(chunks)
	}
	return total, nil
}
