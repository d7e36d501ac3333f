// Package repo holds the connection plumbing shared by gorm-backed stores.
package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base binds a gorm connection to the caller's context. Stores embed it so every
// query carries cancellation and a transaction can be swapped in.
type Base struct {
	conn *gorm.DB
}

func NewBase(conn *gorm.DB) Base {
	return Base{conn: conn}
}

// DB returns the connection bound to ctx. A nil ctx yields the raw connection.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.conn
	}
	return b.conn.WithContext(ctx)
}

// Conn is the unbound connection, for pool-level calls such as Close.
func (b Base) Conn() *gorm.DB {
	return b.conn
}

// Bind returns a Base running on tx. A nil tx keeps the current connection.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{conn: tx}
}
