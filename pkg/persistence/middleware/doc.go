// Package middleware wraps checkpoint stores with encryption at rest and
// key-based redaction.
package middleware
