// Package registry holds the tools a conversation may call.
package registry
