// Package checkpoint persists committed server state to durable storage.
// Writes are atomic: a record is written to a temporary file in the target
// directory and renamed into place, so a crash mid-checkpoint can never
// leave a corrupt or partially-written record behind.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/fedopt-io/fedopt/aggregator"
	"github.com/fedopt-io/fedopt/pkg/errors"
	"github.com/fedopt-io/fedopt/tensor"
)

// Record is one saved round: the full server state as a named tensor
// mapping plus the round number and strategy tag, sufficient to resume
// from that exact round.
type Record struct {
	RunID    string              `cbor:"run_id"`
	Round    uint64              `cbor:"round"`
	Strategy aggregator.Strategy `cbor:"strategy"`
	Weights  tensor.Weights      `cbor:"weights"`
	OptState aggregator.State    `cbor:"opt_state"`
	SavedAt  time.Time           `cbor:"saved_at"`
}

type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir, runID string) (*Store, error) {
	id := sanitizeID(runID)
	if id == "" {
		return nil, fmt.Errorf("%w: run ID %q", errors.ErrInvalidData, runID)
	}

	path := filepath.Join(dir, id)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	return &Store{dir: path}, nil
}

func (s *Store) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	final := filepath.Join(s.dir, recordName(rec.Round))

	tmp, err := os.CreateTemp(s.dir, ".ckpt-*")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to close checkpoint: %w", err)
	}

	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}

	return nil
}

func (s *Store) Load(round uint64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, recordName(round)))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, errors.ErrNotFound
		}

		return Record{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var rec Record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	return rec, nil
}

// Latest returns the record with the highest round number.
func (s *Store) Latest() (Record, error) {
	rounds, err := s.Rounds()
	if err != nil {
		return Record{}, err
	}
	if len(rounds) == 0 {
		return Record{}, errors.ErrNotFound
	}

	return s.Load(rounds[len(rounds)-1])
}

// Rounds lists all saved round numbers in ascending order. In-flight temp
// files are skipped.
func (s *Store) Rounds() ([]uint64, error) {
	s.mu.Lock()
	entries, err := os.ReadDir(s.dir)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var rounds []uint64
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		var round uint64
		if _, err := fmt.Sscanf(entry.Name(), "round_%d.ckpt", &round); err == nil {
			rounds = append(rounds, round)
		}
	}
	slices.Sort(rounds)

	return rounds, nil
}

func recordName(round uint64) string {
	return fmt.Sprintf("round_%012d.ckpt", round)
}

// sanitizeID strips everything but filename-safe characters from an ID so a
// crafted run ID cannot escape the checkpoint directory.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
