package store

import (
	"context"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	EnsureIndex(ctx context.Context, spec *IndexSpec) error
	// UpsertVectors replaces vectors by id.
	UpsertVectors(ctx context.Context, index string, vectors []*IndexedVector) error
	// FetchExistingIDs returns the subset of ids present in the index.
	FetchExistingIDs(ctx context.Context, index string, ids []MovieID) ([]MovieID, error)
	// QueryVectors returns up to TopK matches in descending similarity order.
	QueryVectors(ctx context.Context, index string, query *VectorQuery) ([]*VectorMatch, error)
	DescribeIndex(ctx context.Context, index string) (*IndexStats, error)

	Close() error
}
