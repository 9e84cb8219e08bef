package api

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/gocdf/internal/logger"
	"github.com/samcharles93/gocdf/pkg/cdf"
)

// Dataset is one open CDF file tracked by the store.
type Dataset struct {
	ID       string
	Path     string
	OpenedAt time.Time
	Reader   *cdf.Reader
}

// DatasetStore holds the open CDF readers behind the REST API. Paths
// are resolved under a single base directory.
type DatasetStore struct {
	mu       sync.Mutex
	dir      string
	log      logger.Logger
	datasets map[string]*Dataset
}

func NewDatasetStore(dir string, log logger.Logger) *DatasetStore {
	if log == nil {
		log = logger.Default()
	}
	return &DatasetStore{
		dir:      dir,
		log:      log,
		datasets: make(map[string]*Dataset),
	}
}

// Open resolves path under the store's base directory and opens it.
// Paths escaping the base directory are rejected.
func (s *DatasetStore) Open(path string) (*Dataset, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	r, err := cdf.Open(full, cdf.WithLogger(s.log))
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		ID:       "ds_" + uuid.NewString(),
		Path:     path,
		OpenedAt: time.Now().UTC(),
		Reader:   r,
	}
	s.mu.Lock()
	s.datasets[ds.ID] = ds
	s.mu.Unlock()
	s.log.Debug("dataset opened", "id", ds.ID, "path", path)
	return ds, nil
}

func (s *DatasetStore) resolve(path string) (string, error) {
	if path == "" {
		return "", newInvalidRequest("path is required")
	}
	if filepath.IsAbs(path) {
		return "", newInvalidRequest("path must be relative to the data directory")
	}
	base, err := filepath.Abs(s.dir)
	if err != nil {
		return "", err
	}
	full := filepath.Join(base, filepath.Clean(path))
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", newInvalidRequest("path escapes the data directory")
	}
	return full, nil
}

func (s *DatasetStore) Get(id string) (*Dataset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[id]
	return ds, ok
}

// List returns the open datasets sorted by open time.
func (s *DatasetStore) List() []*Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Dataset, 0, len(s.datasets))
	for _, ds := range s.datasets {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Close releases the dataset's reader and drops it from the store.
func (s *DatasetStore) Close(id string) error {
	s.mu.Lock()
	ds, ok := s.datasets[id]
	if ok {
		delete(s.datasets, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: dataset %q", cdf.ErrNotFound, id)
	}
	return ds.Reader.Close()
}

// CloseAll releases every open dataset.
func (s *DatasetStore) CloseAll() {
	s.mu.Lock()
	datasets := s.datasets
	s.datasets = make(map[string]*Dataset)
	s.mu.Unlock()
	for _, ds := range datasets {
		if err := ds.Reader.Close(); err != nil {
			s.log.Warn("dataset close failed", "id", ds.ID, "error", err)
		}
	}
}
