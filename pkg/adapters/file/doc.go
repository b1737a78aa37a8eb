// Package file stores checkpoints as JSON files on the local filesystem.
package file
