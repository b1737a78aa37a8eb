/*
Package session implements the single-writer lease for threads.

A Manager grants one exclusive lease per thread id, combining a local
reference-counted slot with an optional distributed lock so that replicas
sharing a checkpoint store never interleave writes for the same thread.
Busy threads either queue or are rejected, depending on the Policy.
*/
package session
