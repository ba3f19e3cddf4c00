package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/genc-murat/crystalsignal/internal/core/models"
)

var ErrClosed = errors.New("snapshot log is closed")

// Record is one labelled MemoryStats snapshot.
type Record struct {
	ID         string
	Label      string
	RecordedAt time.Time
	Stats      models.MemoryStats
}

type recordLine struct {
	ID                   string `json:"id"`
	Label                string `json:"label"`
	RecordedAt           string `json:"recorded_at"`
	ActiveCells          int    `json:"active_cells"`
	ActiveComputations   int    `json:"active_computations"`
	TrackedGroups        int    `json:"tracked_groups"`
	EstimatedMemoryBytes int    `json:"estimated_memory_bytes"`
}

// SnapshotLog is an append-only file of JSON lines. A sibling ".lock" file
// is held exclusively while appending and shared while reading, so several
// processes can share one log.
type SnapshotLog struct {
	path   string
	file   *os.File
	lock   *flock.Flock
	mu     sync.Mutex
	closed bool
	now    func() time.Time
}

func NewSnapshotLog(path string) (*SnapshotLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open snapshot log: %w", err)
	}

	return &SnapshotLog{
		path: path,
		file: f,
		lock: flock.New(path + ".lock"),
		now:  time.Now,
	}, nil
}

func (l *SnapshotLog) Path() string {
	return l.path
}

func (l *SnapshotLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

func (l *SnapshotLog) Append(label string, stats models.MemoryStats) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Record{}, ErrClosed
	}

	rec := Record{
		ID:         uuid.NewString(),
		Label:      label,
		RecordedAt: l.now().UTC(),
		Stats:      stats,
	}

	data, err := json.Marshal(recordLine{
		ID:                   rec.ID,
		Label:                rec.Label,
		RecordedAt:           rec.RecordedAt.Format(time.RFC3339Nano),
		ActiveCells:          stats.ActiveCells,
		ActiveComputations:   stats.ActiveComputations,
		TrackedGroups:        stats.TrackedGroups,
		EstimatedMemoryBytes: stats.EstimatedMemoryBytes,
	})
	if err != nil {
		return Record{}, fmt.Errorf("encode snapshot: %w", err)
	}

	if err := l.lock.Lock(); err != nil {
		return Record{}, fmt.Errorf("lock snapshot log: %w", err)
	}
	defer l.lock.Unlock()

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return Record{}, fmt.Errorf("write snapshot: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return Record{}, fmt.Errorf("sync snapshot log: %w", err)
	}
	return rec, nil
}

// Read calls callback for every record in file order.
func (l *SnapshotLog) Read(callback func(rec Record)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	if err := l.lock.RLock(); err != nil {
		return fmt.Errorf("lock snapshot log: %w", err)
	}
	defer l.lock.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("open snapshot log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		rec, err := decodeRecord(line)
		if err != nil {
			return fmt.Errorf("snapshot log line %d: %w", lineNo, err)
		}
		callback(rec)
	}
	return scanner.Err()
}

// Latest returns the most recent record carrying label.
func (l *SnapshotLog) Latest(label string) (Record, bool, error) {
	var (
		latest Record
		found  bool
	)
	err := l.Read(func(rec Record) {
		if rec.Label == label {
			latest = rec
			found = true
		}
	})
	return latest, found, err
}

func decodeRecord(line []byte) (Record, error) {
	if !gjson.ValidBytes(line) {
		return Record{}, errors.New("invalid json")
	}

	doc := gjson.ParseBytes(line)
	id := doc.Get("id")
	if !id.Exists() {
		return Record{}, errors.New("missing id")
	}

	recordedAt, err := time.Parse(time.RFC3339Nano, doc.Get("recorded_at").String())
	if err != nil {
		return Record{}, fmt.Errorf("recorded_at: %w", err)
	}

	return Record{
		ID:         id.String(),
		Label:      doc.Get("label").String(),
		RecordedAt: recordedAt,
		Stats: models.MemoryStats{
			ActiveCells:          int(doc.Get("active_cells").Int()),
			ActiveComputations:   int(doc.Get("active_computations").Int()),
			TrackedGroups:        int(doc.Get("tracked_groups").Int()),
			EstimatedMemoryBytes: int(doc.Get("estimated_memory_bytes").Int()),
		},
	}, nil
}
