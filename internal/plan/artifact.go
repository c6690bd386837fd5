// Package plan persists committed shard plans so that worker tasks can load
// the plan of their run.
package plan

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/arkilian/shardplan/internal/partition"
	"github.com/arkilian/shardplan/pkg/types"
)

// FormatVersion is the version of the stored plan document.
const FormatVersion = 1

// Artifact is a shard plan together with the run that produced it.
type Artifact struct {
	RunID     string
	CreatedAt time.Time
	Plan      *types.ShardPlan
}

type document struct {
	Version   int              `json:"version"`
	RunID     string           `json:"runId"`
	CreatedAt time.Time        `json:"createdAt"`
	Buckets   []bucketDocument `json:"buckets"`
}

type bucketDocument struct {
	Start time.Time         `json:"start"`
	Specs []json.RawMessage `json:"specs"`
}

// Marshal encodes a as JSON. Buckets appear in chronological order and each
// spec carries its "type" discriminant.
func Marshal(a Artifact) ([]byte, error) {
	doc := document{
		Version:   FormatVersion,
		RunID:     a.RunID,
		CreatedAt: a.CreatedAt.UTC(),
		Buckets:   make([]bucketDocument, 0, a.Plan.Len()),
	}

	var err error
	a.Plan.Ascend(func(start time.Time, specs []types.JobShardSpec) bool {
		b := bucketDocument{Start: start.UTC(), Specs: make([]json.RawMessage, len(specs))}
		for i, s := range specs {
			b.Specs[i], err = partition.MarshalJobShardSpec(s)
			if err != nil {
				return false
			}
		}
		doc.Buckets = append(doc.Buckets, b)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("plan: encode shard spec: %w", err)
	}

	return json.Marshal(doc)
}

// Unmarshal decodes a document written by Marshal.
func Unmarshal(data []byte) (Artifact, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Artifact{}, fmt.Errorf("plan: invalid document: %w", err)
	}
	if doc.Version != FormatVersion {
		return Artifact{}, fmt.Errorf("plan: unsupported document version %d", doc.Version)
	}

	builder := types.NewShardPlanBuilder()
	for _, b := range doc.Buckets {
		specs := make([]types.JobShardSpec, len(b.Specs))
		for i, raw := range b.Specs {
			s, err := partition.UnmarshalJobShardSpec(raw)
			if err != nil {
				return Artifact{}, fmt.Errorf("plan: bucket %s: %w", b.Start.Format(time.RFC3339), err)
			}
			specs[i] = s
		}
		if err := builder.Add(b.Start, specs); err != nil {
			return Artifact{}, fmt.Errorf("plan: %w", err)
		}
	}

	p := builder.Build()
	if err := partition.ValidatePlan(p); err != nil {
		return Artifact{}, fmt.Errorf("plan: stored plan is inconsistent: %w", err)
	}

	return Artifact{RunID: doc.RunID, CreatedAt: doc.CreatedAt, Plan: p}, nil
}
