// Package memory provides mutex-guarded, in-process implementations of the
// store interfaces. They honor the same conditional-update semantics as the
// PostgreSQL stores and back the "memory" database driver and end-to-end tests.
package memory
