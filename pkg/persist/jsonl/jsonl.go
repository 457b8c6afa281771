// Package jsonl implements message snapshots as a JSONL file: a header
// line followed by one message per line.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chisel-dev/chisel/pkg/domain"
	"github.com/chisel-dev/chisel/pkg/persist"
)

const formatVersion = 1

type header struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
}

// Store writes snapshots to a single JSONL file, atomically via a temp
// file and rename.
type Store struct {
	path string
}

var _ persist.Snapshotter = (*Store)(nil)

// New creates a Store at path. Parent directories are created on the
// first Save.
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Save(ctx context.Context, messages []*domain.Message) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	if err := writeLine(w, header{Version: formatVersion, SavedAt: time.Now()}); err != nil {
		tmp.Close()
		return err
	}
	for _, msg := range messages {
		if err := writeLine(w, msg); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) ([]*domain.Message, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return nil, scanner.Err()
	}
	var h header
	if err := json.Unmarshal(scanner.Bytes(), &h); err != nil {
		return nil, fmt.Errorf("parsing snapshot header: %w", err)
	}
	if h.Version != formatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}

	var messages []*domain.Message
	for scanner.Scan() {
		var msg domain.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			// Skip bad lines rather than losing the whole session.
			continue
		}
		messages = append(messages, &msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return messages, nil
}

func (s *Store) Close() error { return nil }

func writeLine(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}
