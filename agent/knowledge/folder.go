package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

var ErrFolderNotFound = errors.New("knowledge folder not found")

// FolderSource loads the full text of a document folder.
type FolderSource interface {
	Load(ctx context.Context, folderID string) (string, error)
}

var readableExt = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".json": true,
}

// AferoFolderSource maps a folder id to a directory under root and
// concatenates its readable files. Loads are cached for ttl and concurrent
// loads of one folder share a single read.
type AferoFolderSource struct {
	fs   afero.Fs
	root string
	ttl  time.Duration
	now  func() time.Time

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]cachedFolder
}

type cachedFolder struct {
	content  string
	loadedAt time.Time
}

var _ FolderSource = (*AferoFolderSource)(nil)

func NewAferoFolderSource(fsys afero.Fs, root string, ttl time.Duration) *AferoFolderSource {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &AferoFolderSource{
		fs:    fsys,
		root:  root,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[string]cachedFolder),
	}
}

func (s *AferoFolderSource) Load(ctx context.Context, folderID string) (string, error) {
	folderID = strings.TrimSpace(folderID)
	if folderID == "" || strings.Contains(folderID, "..") || strings.ContainsAny(folderID, `/\`) {
		return "", fmt.Errorf("%w: invalid folder id %q", ErrFolderNotFound, folderID)
	}

	if content, ok := s.cached(folderID); ok {
		return content, nil
	}

	v, err, _ := s.group.Do(folderID, func() (any, error) {
		content, err := s.read(ctx, folderID)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.cache[folderID] = cachedFolder{content: content, loadedAt: s.now()}
		s.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *AferoFolderSource) cached(folderID string) (string, bool) {
	if s.ttl <= 0 {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cache[folderID]
	if !ok || s.now().Sub(c.loadedAt) > s.ttl {
		return "", false
	}
	return c.content, true
}

func (s *AferoFolderSource) read(ctx context.Context, folderID string) (string, error) {
	dir := filepath.Join(s.root, folderID)
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrFolderNotFound, folderID)
		}
		return "", fmt.Errorf("list folder %s: %w", folderID, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	parts := make([]string, 0, len(infos))
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if info.IsDir() || !readableExt[strings.ToLower(filepath.Ext(info.Name()))] {
			continue
		}
		raw, err := afero.ReadFile(s.fs, filepath.Join(dir, info.Name()))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", info.Name(), err)
		}
		if text := strings.TrimSpace(string(raw)); text != "" {
			parts = append(parts, "--- "+info.Name()+" ---\n"+text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
