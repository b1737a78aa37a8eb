// Package redis provides a Redis-backed checkpoint store and distributed
// locker, so several replicas can share threads.
package redis
