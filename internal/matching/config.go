package matching

import (
	"errors"

	"github.com/atlasbook/atlasbook/internal/book"
)

// Config controls the policy switches and resource limits the matching
// engine validates orders against.
type Config struct {
	SelfTradePrevention bool
	AllowMarketOrders   bool
	AllowIOCOrders      bool
	AllowFOKOrders      bool
	MaxOrderQuantity    book.Quantity
	PoolSize            int
}

// DefaultConfig returns a permissive configuration suitable for tests and
// the demo entry point: all order types allowed, self-trade prevention
// on, a generous quantity cap and a modest arena.
func DefaultConfig() Config {
	return Config{
		SelfTradePrevention: true,
		AllowMarketOrders:   true,
		AllowIOCOrders:      true,
		AllowFOKOrders:      true,
		MaxOrderQuantity:    1_000_000,
		PoolSize:            1 << 16,
	}
}

var (
	ErrInvalidMaxQuantity = errors.New("matching: max_order_quantity must be positive")
	ErrInvalidPoolSize    = errors.New("matching: pool_size must be positive")
)

// Validate reports whether the configuration is internally consistent.
func (c Config) Validate() error {
	if c.MaxOrderQuantity == 0 {
		return ErrInvalidMaxQuantity
	}
	if c.PoolSize <= 0 {
		return ErrInvalidPoolSize
	}
	return nil
}
