// Package sqlite stores checkpoints in a local SQLite database.
package sqlite
