package storage

import "time"

// ArticleJob is one article scheduled for image extraction
type ArticleJob struct {
	Title string
	Path  string
}

// Status is the terminal state of one article download
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Reason explains a skipped or failed article
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonFetchFailed      Reason = "fetch_failed"
	ReasonNoImages         Reason = "no_images"
	ReasonImageFetchFailed Reason = "image_fetch_failed"
	ReasonFilesystem       Reason = "filesystem_failed"
)

// Outcome reports how a single article download ended
type Outcome struct {
	Status        Status
	Reason        Reason
	Directory     string
	ImagesWritten int
	BytesWritten  int64
	Err           error
}

// Completed returns a successful outcome
func Completed(dir string, images int, bytes int64) Outcome {
	return Outcome{Status: StatusCompleted, Directory: dir, ImagesWritten: images, BytesWritten: bytes}
}

// Skipped returns an outcome for an article that produced no directory
func Skipped(reason Reason, err error) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason, Err: err}
}

// Failed returns an outcome for an article aborted part-way through
func Failed(reason Reason, dir string, images int, bytes int64, err error) Outcome {
	return Outcome{
		Status:        StatusFailed,
		Reason:        reason,
		Directory:     dir,
		ImagesWritten: images,
		BytesWritten:  bytes,
		Err:           err,
	}
}

// ArticleRecord is the persisted form of one reclaimed article job
type ArticleRecord struct {
	Seq           int
	Title         string
	Path          string
	Status        Status
	Reason        Reason
	Directory     string
	ImagesWritten int
	BytesWritten  int64
	Error         string
	DurationMs    int64
	RecordedAt    time.Time
}

// Run describes one harvester invocation in the ledger
type Run struct {
	RunID             string
	BaseURL           string
	StartedAt         time.Time
	FinishedAt        time.Time
	TerminationReason string
}

// Metrics tracks run statistics for export on exit
type Metrics struct {
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	ArticlesListed     int       `json:"articles_listed"`
	ArticlesFinished   int       `json:"articles_finished"`
	ArticlesCompleted  int       `json:"articles_completed"`
	ArticlesSkipped    int       `json:"articles_skipped"`
	ArticlesFailed     int       `json:"articles_failed"`
	ImagesWritten      int       `json:"images_written"`
	BytesWritten       int64     `json:"bytes_written"`
	TotalArticleTimeMs int64     `json:"total_article_time_ms"`
	AvgArticleTimeMs   int64     `json:"avg_article_time_ms"`
	TerminationReason  string    `json:"termination_reason"`
}
