package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories over one database handle, which may be a
// transaction.
type Store struct {
	db *gorm.DB

	Units      *UnitRepository
	Attempts   *AttemptRepository
	Orders     *OrderRepository
	Details    *DetailRepository
	Watermarks *WatermarkRepository
}

// NewStore creates a Store over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:         db,
		Units:      NewUnitRepository(db),
		Attempts:   NewAttemptRepository(db),
		Orders:     NewOrderRepository(db),
		Details:    NewDetailRepository(db),
		Watermarks: NewWatermarkRepository(db),
	}
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// InTx runs fn with a Store bound to one transaction. Returning an error from
// fn rolls the transaction back.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
