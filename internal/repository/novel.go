package repository

import (
	"context"
	"iter"

	"novelhub/internal/domain"
)

// NovelOrder selects the ordering of a novel listing.
type NovelOrder int

const (
	// OrderStorage enumerates rows in insertion order.
	OrderStorage NovelOrder = iota
	OrderNewest
	OrderTitleDesc
	OrderAuthorDesc
)

// NovelFilter narrows a novel listing. Zero values mean "no constraint".
type NovelFilter struct {
	Author string
	Genre  domain.Genre
	Order  NovelOrder
	Limit  int
}

// NovelRepository exposes persistence operations for Novel records.
//
// List and Search return lazy sequences: rows are read while the caller ranges
// and ranging again re-runs the query.
type NovelRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, novel *domain.Novel) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Novel, error)
	List(ctx context.Context, filter NovelFilter) iter.Seq2[domain.Novel, error]
	Search(ctx context.Context, match string) iter.Seq2[domain.Novel, error]
	Delete(ctx context.Context, id int64) error
}
