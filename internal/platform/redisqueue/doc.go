// Package redisqueue implements task.Queue on a Redis list so that submitted
// jobs survive a process restart and can be shared by several server instances.
// Producers LPUSH JSON-encoded jobs and workers BRPOP them. Messages that cannot
// be decoded are moved to a dead-letter list instead of being dropped.
package redisqueue
