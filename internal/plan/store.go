package plan

import (
	"context"
	stderrors "errors"
	"fmt"
	"path"

	"github.com/arkilian/shardplan/internal/errors"
	"github.com/arkilian/shardplan/internal/storage"
	"go.uber.org/zap"
)

// ObjectName is the base name of a stored plan before the codec extension.
const ObjectName = "shard_specs.json"

// Store reads and writes plan artifacts under a working prefix of an object
// store: <workingPath>/<runID>/shard_specs.json<ext>.
type Store struct {
	objects     storage.ObjectStorage
	workingPath string
	codec       Codec
	log         *zap.Logger
}

// NewStore creates a plan store.
func NewStore(objects storage.ObjectStorage, workingPath string, codec Codec, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		objects:     objects,
		workingPath: workingPath,
		codec:       codec,
		log:         log,
	}
}

// Key returns the object path of the plan of runID.
func (s *Store) Key(runID string) string {
	return path.Join(s.workingPath, runID, ObjectName+s.codec.Extension())
}

// Save writes a and returns its object path.
func (s *Store) Save(ctx context.Context, a Artifact) (string, error) {
	if a.RunID == "" {
		return "", errors.NewInternalError("plan artifact has no run id", nil)
	}

	raw, err := Marshal(a)
	if err != nil {
		return "", errors.NewInternalError("failed to encode plan", err)
	}
	data, err := s.codec.Compress(raw)
	if err != nil {
		return "", errors.NewInternalError("failed to compress plan", err)
	}

	key := s.Key(a.RunID)
	if err := s.objects.Put(ctx, key, data); err != nil {
		return "", errors.NewStorageError(errors.CodeUploadFailed,
			fmt.Sprintf("failed to store plan %s", key), err)
	}

	s.log.Info("Stored shard plan",
		zap.String("run_id", a.RunID),
		zap.String("key", key),
		zap.String("codec", string(s.codec)),
		zap.Int("bytes", len(data)),
		zap.Int("raw_bytes", len(raw)))
	return key, nil
}

// Exists reports whether a plan of runID is stored.
func (s *Store) Exists(ctx context.Context, runID string) (bool, error) {
	key := s.Key(runID)
	ok, err := s.objects.Exists(ctx, key)
	if err != nil {
		return false, errors.NewStorageError(errors.CodeDownloadFailed,
			fmt.Sprintf("failed to check plan %s", key), err)
	}
	return ok, nil
}

// Load reads the plan of runID.
func (s *Store) Load(ctx context.Context, runID string) (Artifact, error) {
	key := s.Key(runID)
	data, err := s.objects.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, storage.ErrObjectNotFound) {
			return Artifact{}, errors.NewStorageError(errors.CodeObjectNotFound,
				fmt.Sprintf("no plan stored for run %s", runID), err)
		}
		return Artifact{}, errors.NewStorageError(errors.CodeDownloadFailed,
			fmt.Sprintf("failed to read plan %s", key), err)
	}

	raw, err := s.codec.Decompress(data)
	if err != nil {
		return Artifact{}, errors.NewInternalError("failed to decompress plan", err)
	}
	a, err := Unmarshal(raw)
	if err != nil {
		return Artifact{}, errors.NewInternalError("failed to decode plan", err)
	}
	return a, nil
}
