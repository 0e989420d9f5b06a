// Package testdb provides helpers for integration tests that run against a
// real PostgreSQL database.
//
// Tests using it are guarded by the integration build tag and skip themselves
// when no database URL is configured:
//
//	SHELF_TEST_DATABASE_URL=postgres://... go test -tags=integration ./...
//
// Each test body runs inside a transaction that is always rolled back, so
// tests can share one database without cleaning up after themselves.
package testdb
