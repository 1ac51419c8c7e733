// Package submissions persists the lifecycle of every transaction
// submission in a WAL. The submission hash is the only handle that can
// recover an in-flight outcome after a process restart, so it is written
// to disk the moment the network returns it, before the first poll.
package submissions

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	DefaultDir = "./wal/submissions"

	segmentThreshold = 1000
	maxSegments      = 100

	recordKeyPrefix = "submission_"
)

// Submission statuses.
const (
	StatusPending   = "pending"
	StatusSubmitted = "submitted"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
	StatusTimedOut  = "timed_out"
)

// Record is one journaled submission.
type Record struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Method    string    `json:"method"`
	Contract  string    `json:"contract"`
	Source    string    `json:"source"`
	Hash      string    `json:"hash,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Journal is the WAL-backed submission store.
type Journal struct {
	mu      sync.Mutex
	wal     *gowal.Wal
	records []*Record
	index   map[string]*Record
}

// NewJournal opens (or creates) the journal in dir and replays any
// existing records.
func NewJournal(dir string) (*Journal, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "log_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init submission WAL")
	}

	j := &Journal{
		wal:   wal,
		index: make(map[string]*Record),
	}

	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, recordKeyPrefix) {
			continue
		}
		var rec Record
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			continue
		}
		if existing, ok := j.index[rec.ID]; ok {
			*existing = rec
			continue
		}
		copied := rec
		j.records = append(j.records, &copied)
		j.index[rec.ID] = &copied
	}

	return j, nil
}

// Prepare journals a new pending submission and returns its record.
func (j *Journal) Prepare(method, contract, source string) (*Record, error) {
	now := time.Now().UTC()
	rec := &Record{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		Method:    method,
		Contract:  contract,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.persist(rec); err != nil {
		return nil, err
	}
	j.records = append(j.records, rec)
	j.index[rec.ID] = rec
	return rec, nil
}

// MarkSubmitted records the network-assigned hash. Called before the first
// confirmation poll.
func (j *Journal) MarkSubmitted(rec *Record, hash string) error {
	return j.update(rec, func() {
		rec.Status = StatusSubmitted
		rec.Hash = hash
	})
}

// MarkConfirmed records a terminal success.
func (j *Journal) MarkConfirmed(rec *Record) error {
	return j.update(rec, func() {
		rec.Status = StatusConfirmed
		rec.Error = ""
	})
}

// MarkFailed records a terminal failure.
func (j *Journal) MarkFailed(rec *Record, cause error) error {
	return j.update(rec, func() {
		rec.Status = StatusFailed
		if cause != nil {
			rec.Error = cause.Error()
		}
	})
}

// MarkTimedOut records an exhausted confirmation ceiling. The hash stays in
// the record so the true outcome can be recovered later.
func (j *Journal) MarkTimedOut(rec *Record) error {
	return j.update(rec, func() {
		rec.Status = StatusTimedOut
	})
}

// Unresolved returns submissions that have a hash but no terminal outcome,
// the set a restarted process should re-query.
func (j *Journal) Unresolved() []Record {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []Record
	for _, rec := range j.records {
		if rec.Hash == "" {
			continue
		}
		if rec.Status == StatusSubmitted || rec.Status == StatusTimedOut {
			out = append(out, *rec)
		}
	}
	return out
}

// Records returns a copy of every journaled submission.
func (j *Journal) Records() []Record {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Record, 0, len(j.records))
	for _, rec := range j.records {
		out = append(out, *rec)
	}
	return out
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.wal.Close()
}

func (j *Journal) update(rec *Record, mutate func()) error {
	if rec == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	mutate()
	rec.UpdatedAt = time.Now().UTC()
	return j.persist(rec)
}

func (j *Journal) persist(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal submission record")
	}
	key := fmt.Sprintf("%s%s", recordKeyPrefix, rec.ID)
	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, data)
}
