package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/mindgraph/pkg/domain"
)

const ext = ".json"

// Store implements ports.CheckpointStore using the local filesystem.
// Each thread is a directory holding one JSON file per checkpoint, named by
// its zero-padded sequence number so lexical order is sequence order.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".mindgraph/threads".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".mindgraph", "threads")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) threadDir(threadID string) (string, error) {
	name := url.PathEscape(threadID)
	if threadID == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid thread id %q", threadID)
	}
	return filepath.Join(s.BasePath, name), nil
}

func checkpointName(seq int64) string {
	return fmt.Sprintf("%020d%s", seq, ext)
}

// Save persists a checkpoint atomically.
// The payload is written to a temporary file and synced, then hard-linked to
// its final name. Linking fails if the name exists, which keeps history
// append-only even between processes.
func (s *Store) Save(ctx context.Context, cp *domain.Checkpoint) error {
	dir, err := s.threadDir(cp.ThreadID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure thread directory: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	// Same directory so the link stays on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-*"+ext)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Link(tmpPath, filepath.Join(dir, checkpointName(cp.Seq))); err != nil {
		if errors.Is(err, os.ErrExist) {
			return domain.ErrCheckpointExists
		}
		return fmt.Errorf("failed to publish checkpoint: %w", err)
	}
	return nil
}

// checkpoints returns the checkpoint file names of a thread in sequence order.
func (s *Store) checkpoints(threadID string) (string, []string, error) {
	dir, err := s.threadDir(threadID)
	if err != nil {
		return "", nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, domain.ErrThreadNotFound
		}
		return "", nil, fmt.Errorf("failed to read thread directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "tmp-") || filepath.Ext(name) != ext {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "", nil, domain.ErrThreadNotFound
	}
	return dir, names, nil
}

func read(path string) (*domain.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Load retrieves the latest checkpoint of a thread.
func (s *Store) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	dir, names, err := s.checkpoints(threadID)
	if err != nil {
		return nil, err
	}
	return read(filepath.Join(dir, names[len(names)-1]))
}

// History lists the checkpoints of a thread in order.
func (s *Store) History(ctx context.Context, threadID string) ([]domain.CheckpointMeta, error) {
	dir, names, err := s.checkpoints(threadID)
	if err != nil {
		return nil, err
	}
	metas := make([]domain.CheckpointMeta, 0, len(names))
	for _, name := range names {
		cp, err := read(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		metas = append(metas, cp.Meta())
	}
	return metas, nil
}

// Delete removes the thread directory.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	dir, err := s.threadDir(threadID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

// List returns all thread IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	threads := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := url.PathUnescape(entry.Name())
		if err != nil {
			continue
		}
		threads = append(threads, id)
	}
	return threads, nil
}
