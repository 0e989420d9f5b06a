// Package domain contains the core business entities of the record service:
// users, bearer tokens, books and the per-row upload tasks produced by bulk
// ingestion. Entities carry their own invariants (validity predicates, state
// machine transitions) and know nothing about storage or transport.
package domain
