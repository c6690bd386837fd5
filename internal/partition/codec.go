package partition

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/arkilian/shardplan/pkg/types"
)

// SpecDecoder builds a shard spec from its JSON body.
type SpecDecoder func(data json.RawMessage) (types.ShardSpec, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[types.ShardSpecKind]SpecDecoder)
)

func init() {
	RegisterShardSpec(types.KindHashed, decodeHashed)
	RegisterShardSpec(types.KindSingle, decodeSingle)
}

// RegisterShardSpec makes a shard spec variant decodable under kind.
// It panics if kind is already registered.
func RegisterShardSpec(kind types.ShardSpecKind, decode SpecDecoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("partition: shard spec %q registered twice", kind))
	}
	registry[kind] = decode
}

// RegisteredKinds returns the registered discriminants in sorted order.
func RegisteredKinds() []types.ShardSpecKind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]types.ShardSpecKind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

type hashedJSON struct {
	Type         types.ShardSpecKind `json:"type"`
	PartitionNum int                 `json:"partitionNum"`
	Partitions   int                 `json:"partitions"`
	Dimensions   []string            `json:"partitionDimensions"`
}

type singleJSON struct {
	Type types.ShardSpecKind `json:"type"`
}

// MarshalShardSpec encodes spec with an explicit "type" discriminant.
func MarshalShardSpec(spec types.ShardSpec) ([]byte, error) {
	switch s := spec.(type) {
	case types.HashedShardSpec:
		dims := s.Dimensions
		if dims == nil {
			dims = []string{}
		}
		return json.Marshal(hashedJSON{
			Type:         types.KindHashed,
			PartitionNum: s.Partition,
			Partitions:   s.Partitions,
			Dimensions:   dims,
		})
	case types.SingleShardSpec:
		return json.Marshal(singleJSON{Type: types.KindSingle})
	default:
		return nil, fmt.Errorf("partition: cannot encode shard spec %T", spec)
	}
}

// UnmarshalShardSpec decodes a spec using the decoder registered for its "type".
func UnmarshalShardSpec(data []byte) (types.ShardSpec, error) {
	var head struct {
		Type types.ShardSpecKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("partition: invalid shard spec: %w", err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("partition: shard spec has no type")
	}

	registryMu.RLock()
	decode, ok := registry[head.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("partition: unknown shard spec type %q", head.Type)
	}
	return decode(data)
}

type jobShardSpecJSON struct {
	Actual   json.RawMessage `json:"actualSpec"`
	ShardNum int             `json:"shardNum"`
}

// MarshalJobShardSpec encodes a spec together with its job-wide shard number.
func MarshalJobShardSpec(spec types.JobShardSpec) ([]byte, error) {
	actual, err := MarshalShardSpec(spec.Actual)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jobShardSpecJSON{Actual: actual, ShardNum: spec.ShardNum})
}

// UnmarshalJobShardSpec is the inverse of MarshalJobShardSpec.
func UnmarshalJobShardSpec(data []byte) (types.JobShardSpec, error) {
	var raw jobShardSpecJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return types.JobShardSpec{}, fmt.Errorf("partition: invalid job shard spec: %w", err)
	}
	actual, err := UnmarshalShardSpec(raw.Actual)
	if err != nil {
		return types.JobShardSpec{}, err
	}
	return types.NewJobShardSpec(actual, raw.ShardNum), nil
}

func decodeHashed(data json.RawMessage) (types.ShardSpec, error) {
	var h hashedJSON
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("partition: invalid hashed shard spec: %w", err)
	}
	if h.Partitions <= 0 {
		return nil, fmt.Errorf("partition: hashed shard spec needs partitions > 0, got %d", h.Partitions)
	}
	if h.PartitionNum < 0 || h.PartitionNum >= h.Partitions {
		return nil, fmt.Errorf("partition: partitionNum %d out of range [0, %d)", h.PartitionNum, h.Partitions)
	}
	return types.NewHashedShardSpec(h.PartitionNum, h.Partitions, h.Dimensions), nil
}

func decodeSingle(json.RawMessage) (types.ShardSpec, error) {
	return types.SingleShardSpec{}, nil
}
