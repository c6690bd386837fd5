// Package types provides the core data types of shardplan: time buckets,
// shard specs, shard plans and input path specs.
package types
