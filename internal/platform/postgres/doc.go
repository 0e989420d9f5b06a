// Package postgres provides PostgreSQL implementations of the store interfaces
// using database/sql with the pgx driver. Schema migrations are embedded in the
// binary and applied with goose.
//
// All state transitions are single conditional UPDATE statements, so the
// database rather than the application arbitrates concurrent writers.
package postgres
