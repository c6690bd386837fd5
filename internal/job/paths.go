package job

import (
	"context"
	"fmt"
	"os"

	"github.com/arkilian/shardplan/internal/storage"
)

// Paths are the locations a planning run writes to.
type Paths struct {
	// Working holds intermediate artifacts such as the persisted plan
	Working string `json:"working_path" yaml:"working_path"`

	// Output is where the ingestion job writes its segments
	Output string `json:"output_path" yaml:"output_path"`
}

// PathPreparer makes sure the working and output locations exist before any
// stage runs.
type PathPreparer interface {
	EnsurePaths(ctx context.Context, paths Paths) error
}

// PathPreparerFunc adapts a function to the PathPreparer interface.
type PathPreparerFunc func(ctx context.Context, paths Paths) error

func (f PathPreparerFunc) EnsurePaths(ctx context.Context, paths Paths) error {
	return f(ctx, paths)
}

// LocalPathPreparer creates the paths as local directories.
type LocalPathPreparer struct{}

func (LocalPathPreparer) EnsurePaths(ctx context.Context, paths Paths) error {
	for _, dir := range []string{paths.Working, paths.Output} {
		if err := ctx.Err(); err != nil {
			return err
		}
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// StoragePathPreparer creates the paths as prefixes of an object store.
type StoragePathPreparer struct {
	Store storage.ObjectStorage
}

// NewStoragePathPreparer creates a preparer for store.
func NewStoragePathPreparer(store storage.ObjectStorage) *StoragePathPreparer {
	return &StoragePathPreparer{Store: store}
}

func (p *StoragePathPreparer) EnsurePaths(ctx context.Context, paths Paths) error {
	if p.Store == nil {
		return fmt.Errorf("job: no object store configured")
	}
	for _, prefix := range []string{paths.Working, paths.Output} {
		if prefix == "" {
			continue
		}
		if err := p.Store.MakePrefix(ctx, prefix); err != nil {
			return fmt.Errorf("failed to create prefix %s: %w", prefix, err)
		}
	}
	return nil
}
