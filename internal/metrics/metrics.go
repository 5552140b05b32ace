package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/image-weaver/internal/storage"
)

// Tracker holds and manages run metrics
type Tracker struct {
	mu                 sync.Mutex
	data               storage.Metrics
	totalArticleTimeMs int64
	articleCount       int
}

// NewTracker creates a new metrics tracker
func NewTracker() *Tracker {
	return &Tracker{
		data: storage.Metrics{
			StartTime: time.Now(),
		},
	}
}

// SetArticlesListed records how many article jobs the listing produced
func (t *Tracker) SetArticlesListed(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.ArticlesListed = n
}

// Record accounts for one finished article
func (t *Tracker) Record(outcome storage.Outcome, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.ArticlesFinished++
	switch outcome.Status {
	case storage.StatusCompleted:
		t.data.ArticlesCompleted++
	case storage.StatusSkipped:
		t.data.ArticlesSkipped++
	case storage.StatusFailed:
		t.data.ArticlesFailed++
	}

	// Failed articles may still have written some images
	t.data.ImagesWritten += outcome.ImagesWritten
	t.data.BytesWritten += outcome.BytesWritten

	t.totalArticleTimeMs += duration.Milliseconds()
	t.articleCount++
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	snapshot.TotalArticleTimeMs = t.totalArticleTimeMs

	if t.articleCount > 0 {
		snapshot.AvgArticleTimeMs = t.totalArticleTimeMs / int64(t.articleCount)
	}

	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Finalize metrics
	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.data.TotalArticleTimeMs = t.totalArticleTimeMs

	if t.articleCount > 0 {
		t.data.AvgArticleTimeMs = t.totalArticleTimeMs / int64(t.articleCount)
	}

	jsonData, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress formats current metrics for periodic console updates
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Articles: %d listed, %d finished (%d completed, %d skipped, %d failed) | Images: %d (%d bytes)",
		t.data.ArticlesListed,
		t.data.ArticlesFinished,
		t.data.ArticlesCompleted,
		t.data.ArticlesSkipped,
		t.data.ArticlesFailed,
		t.data.ImagesWritten,
		t.data.BytesWritten,
	)
}
