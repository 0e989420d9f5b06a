// Package batch accepts bulk uploads and reports on their progress. A
// submission becomes one upload task per valid row, all sharing a batch ID;
// the tasks are persisted together and handed to an Enqueuer for async
// processing. Queries are scoped to the submitting user.
package batch
