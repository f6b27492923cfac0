package database

import (
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

// MockPool is the pgxmock pool handed to repositories and TxManager in tests.
type MockPool = pgxmock.PgxPoolIface

// NewMockPool creates a MockPool that matches statements by regular
// expression. It satisfies Pool, so one mock backs the repositories and the
// TxManager joining them. Finish each test with ExpectationsWereMet.
func NewMockPool() (MockPool, error) {
	return pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
}

var _ Pool = (MockPool)(nil)
