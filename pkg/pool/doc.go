// Package pool bounds concurrent access to shared collaborators such as the
// model, tools and the checkpoint store.
package pool
