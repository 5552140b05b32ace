package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/image-weaver/internal/storage"
)

// Ledger holds article records in memory until they are flushed to storage
type Ledger struct {
	runID     string
	baseURL   string
	startedAt time.Time
	records   map[int]storage.ArticleRecord // seq -> record
	mu        sync.RWMutex
}

// NewLedger creates an empty ledger for a new run
func NewLedger(baseURL string) *Ledger {
	return &Ledger{
		runID:     uuid.New().String(),
		baseURL:   baseURL,
		startedAt: time.Now(),
		records:   make(map[int]storage.ArticleRecord),
	}
}

// RunID returns the identifier of this run
func (l *Ledger) RunID() string {
	return l.runID
}

// Record stores the outcome of one article, replacing any earlier record for seq
func (l *Ledger) Record(seq int, job storage.ArticleJob, outcome storage.Outcome, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := storage.ArticleRecord{
		Seq:           seq,
		Title:         job.Title,
		Path:          job.Path,
		Status:        outcome.Status,
		Reason:        outcome.Reason,
		Directory:     outcome.Directory,
		ImagesWritten: outcome.ImagesWritten,
		BytesWritten:  outcome.BytesWritten,
		DurationMs:    duration.Milliseconds(),
		RecordedAt:    time.Now(),
	}
	if outcome.Err != nil {
		rec.Error = outcome.Err.Error()
	}
	l.records[seq] = rec
}

// Records returns a copy of all records ordered by listing position
func (l *Ledger) Records() []storage.ArticleRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]storage.ArticleRecord, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// GetStats returns counts per status
func (l *Ledger) GetStats() map[storage.Status]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[storage.Status]int)
	for _, rec := range l.records {
		stats[rec.Status]++
	}
	return stats
}

// Flush writes the run and all in-memory records to SQLite storage
func (l *Ledger) Flush(store *storage.Storage, reason string) error {
	startTime := time.Now()
	logrus.Info("Starting flush to database...")

	records := l.Records()

	existing, err := store.GetRun(l.runID)
	if err != nil {
		return fmt.Errorf("failed to look up run: %w", err)
	}
	if existing == nil {
		if err := store.BeginRun(l.runID, l.baseURL, l.startedAt); err != nil {
			return err
		}
	}

	if err := store.SaveArticles(l.runID, records); err != nil {
		return err
	}

	if err := store.FinishRun(l.runID, reason, time.Now()); err != nil {
		return err
	}

	logrus.Infof("Flush complete: run %s, %d articles written in %v", l.runID, len(records), time.Since(startTime))
	return nil
}
