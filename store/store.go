package store

import (
	"context"
	"errors"

	"elevenlab/ent"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidID         = errors.New("invalid id")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// FoodFilter selects foods. Zero fields do not constrain the result.
type FoodFilter struct {
	// Name is matched as a case-insensitive substring.
	Name             string
	AddedBy          string
	MinPurchaseCount int64
	ByPopularity     bool
	Limit            int
}

type Store interface {
	InsertFood(ctx context.Context, f ent.Food) (ent.InsertResult, error)
	FindFoods(ctx context.Context, filter FoodFilter) ([]ent.Food, error)
	FindFood(ctx context.Context, id string) (ent.Food, error)
	UpdateFood(ctx context.Context, id string, u ent.FoodUpdate) (ent.UpdateResult, error)
	IncrementPurchaseCount(ctx context.Context, id string) error

	// ReserveFood decrements stock by qty and bumps purchase_count in a single
	// conditional write. It fails with ErrInsufficientStock when stock < qty.
	ReserveFood(ctx context.Context, id string, qty float64) error
	// ReleaseFood undoes a ReserveFood.
	ReleaseFood(ctx context.Context, id string, qty float64) error

	InsertPurchase(ctx context.Context, p ent.Purchase) (ent.InsertResult, error)
	FindPurchases(ctx context.Context, buyerEmail string) ([]ent.Purchase, error)
	DeletePurchase(ctx context.Context, id string) (ent.DeleteResult, error)

	Close(ctx context.Context) error
}
