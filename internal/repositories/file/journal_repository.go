package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ridestore/internal/models"
	"ridestore/internal/repositories/interfaces"
)

const (
	commitLogFile = "commit.log"
	snapshotFile  = "snapshot.json"
)

// journalRepository keeps the commit log as JSON lines and the newest
// snapshot as a single file replaced atomically (temp file, fsync, rename,
// directory fsync).
type journalRepository struct {
	dir string

	mu  sync.Mutex
	log *os.File
}

func NewJournalRepository(dir string) (interfaces.JournalRepository, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("journal dir is required")
	}
	if err := ensureDirDurable(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}
	path := filepath.Join(dir, commitLogFile)
	if err := truncateTornTail(path); err != nil {
		return nil, fmt.Errorf("failed to repair commit log: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open commit log: %w", err)
	}
	return &journalRepository{dir: dir, log: f}, nil
}

// Log operations
func (r *journalRepository) Append(ctx context.Context, entry *models.CommitEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode commit %d: %w", entry.Seq, err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.log == nil {
		return errors.New("journal is closed")
	}
	info, err := r.log.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat commit log: %w", err)
	}
	offset := info.Size()
	if _, err := r.log.Write(line); err != nil {
		return r.rollback(offset, fmt.Errorf("failed to append commit %d: %w", entry.Seq, err))
	}
	if err := r.log.Sync(); err != nil {
		return r.rollback(offset, fmt.Errorf("failed to sync commit log: %w", err))
	}
	return nil
}

// rollback cuts the log back to offset so a failed append leaves no partial
// or unacknowledged line behind.
func (r *journalRepository) rollback(offset int64, cause error) error {
	if err := r.log.Truncate(offset); err != nil {
		return fmt.Errorf("%w (rollback to %d failed: %v)", cause, offset, err)
	}
	if err := r.log.Sync(); err != nil {
		return fmt.Errorf("%w (rollback sync failed: %v)", cause, err)
	}
	return cause
}

// ReadEntries stops quietly at a final line without a newline, which is a
// write torn by a crash and was never acknowledged.
func (r *journalRepository) ReadEntries(ctx context.Context, afterSeq uint64, fn func(*models.CommitEntry) error) error {
	f, err := os.Open(filepath.Join(r.dir, commitLogFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open commit log: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read commit log: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var entry models.CommitEntry
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&entry); err != nil {
			return fmt.Errorf("invalid commit log line %d: %w", lineNo, err)
		}
		if entry.Seq <= afterSeq {
			continue
		}
		if err := fn(&entry); err != nil {
			return err
		}
	}
}

// Snapshot operations
func (r *journalRepository) SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := writeFileAtomicDurable(filepath.Join(r.dir, snapshotFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (r *journalRepository) LoadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var snapshot models.Snapshot
	err := readJSONStrict(filepath.Join(r.dir, snapshotFile), &snapshot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return &snapshot, nil
}

func (r *journalRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.log == nil {
		return nil
	}
	err := r.log.Close()
	r.log = nil
	return err
}

// truncateTornTail drops bytes after the last newline so the next append
// starts on a fresh line.
func truncateTornTail(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	keep := bytes.LastIndexByte(data, '\n') + 1
	if keep == len(data) {
		return nil
	}
	return os.Truncate(path, int64(keep))
}

func readJSONStrict(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	// Ensure no trailing junk.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON: trailing content")
	}
	return nil
}

func ensureDirDurable(dir string, perm os.FileMode) error {
	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	if err := fsyncDir(dir); err != nil {
		return err
	}
	parent := filepath.Dir(dir)
	if parent != dir {
		if err := fsyncDir(parent); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
