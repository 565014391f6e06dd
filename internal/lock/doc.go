// Package lock provides per-key mutual exclusion for the approval engine.
//
// KeyedMutex serialises callers inside one process. RedisLocker extends the
// same guarantee across processes sharing a Redis instance, using SET NX
// with a random token and a compare-and-delete release script.
package lock
