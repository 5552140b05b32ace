package crawler

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/image-weaver/internal/fetch"
	"github.com/alvmarrod/image-weaver/internal/storage"
)

// ArticleProcessor turns one article job into an outcome
type ArticleProcessor interface {
	Download(job storage.ArticleJob) storage.Outcome
}

// Downloader saves the images of one article into its own directory
type Downloader struct {
	fetcher fetch.Fetcher
	locator *Locator
	baseURL *url.URL
	root    string
}

// NewDownloader creates a downloader resolving article paths against baseURL
// and writing article directories under root
func NewDownloader(f fetch.Fetcher, locator *Locator, baseURL, root string) (*Downloader, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &Downloader{
		fetcher: f,
		locator: locator,
		baseURL: base,
		root:    root,
	}, nil
}

// Download fetches the article, locates its images and writes them in order.
// The directory is only created once there is at least one image. The first
// failing image aborts the article; files already written stay on disk.
func (d *Downloader) Download(job storage.ArticleJob) storage.Outcome {
	articleURL, err := ResolveURL(d.baseURL, job.Path)
	if err != nil {
		return storage.Skipped(storage.ReasonFetchFailed, err)
	}

	images, err := d.locator.ArticleImages(d.fetcher, articleURL)
	if err != nil {
		return storage.Skipped(storage.ReasonFetchFailed, err)
	}
	if len(images) == 0 {
		return storage.Skipped(storage.ReasonNoImages, nil)
	}

	dir := filepath.Join(d.root, SanitizeDirName(job.Title))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return storage.Failed(storage.ReasonFilesystem, dir, 0, 0, fmt.Errorf("failed to create article directory: %w", err))
	}

	// Resolve relative refs against the article page, not the site root
	pageURL, err := url.Parse(articleURL)
	if err != nil {
		pageURL = d.baseURL
	}

	var written int
	var bytesWritten int64
	for _, ref := range images {
		name, err := ImageFileName(ref)
		if err != nil {
			return storage.Failed(storage.ReasonFilesystem, dir, written, bytesWritten, err)
		}

		imageURL, err := ResolveURL(pageURL, ref)
		if err != nil {
			return storage.Failed(storage.ReasonImageFetchFailed, dir, written, bytesWritten, err)
		}

		data, err := d.fetcher.Fetch(imageURL)
		if err != nil {
			return storage.Failed(storage.ReasonImageFetchFailed, dir, written, bytesWritten, err)
		}

		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return storage.Failed(storage.ReasonFilesystem, dir, written, bytesWritten, fmt.Errorf("failed to write image: %w", err))
		}

		written++
		bytesWritten += int64(len(data))
		logrus.Debugf("Saved %s (%d bytes) for %q", name, len(data), job.Title)
	}

	return storage.Completed(dir, written, bytesWritten)
}
