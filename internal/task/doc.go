// Package task runs bulk-upload rows asynchronously. A Runner pulls jobs from a
// Queue, claims the referenced upload task with a compare-and-set, creates the
// book and records the terminal outcome. Errors never escape a worker; they
// become the task's failed state.
package task
