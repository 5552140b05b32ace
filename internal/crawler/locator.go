package crawler

import (
	"strings"

	"github.com/alvmarrod/image-weaver/internal/fetch"
)

// Markers delimit the content region and the image source attribute
type Markers struct {
	RegionStart string
	RegionEnd   string
	ImageSource string
}

// DefaultMarkers returns the markers of the article layout served by habr.com
func DefaultMarkers() Markers {
	return Markers{
		RegionStart: `<div id="post-content-body">`,
		RegionEnd:   "</div>",
		ImageSource: `<img src="`,
	}
}

// Locator extracts image references from the content region of an article body
type Locator struct {
	markers Markers
	quote   byte
}

// NewLocator creates a locator for the given markers
func NewLocator(m Markers) *Locator {
	quote := byte('"')
	if n := len(m.ImageSource); n > 0 && (m.ImageSource[n-1] == '"' || m.ImageSource[n-1] == '\'') {
		quote = m.ImageSource[n-1]
	}
	return &Locator{markers: m, quote: quote}
}

// Locate returns the image references inside the content region in document
// order, duplicates included. A missing start or end marker yields no images.
func (l *Locator) Locate(body string) []string {
	region, ok := l.region(body)
	if !ok {
		return nil
	}

	var images []string
	pattern := l.markers.ImageSource
	for {
		idx := strings.Index(region, pattern)
		if idx < 0 {
			break
		}
		region = region[idx+len(pattern):]

		end := strings.IndexByte(region, l.quote)
		if end < 0 {
			// Unterminated attribute: nothing after it can be trusted
			break
		}
		images = append(images, region[:end])
		region = region[end+1:]
	}
	return images
}

// region returns the text between the start marker and the first end marker after it
func (l *Locator) region(body string) (string, bool) {
	if l.markers.RegionStart == "" || l.markers.RegionEnd == "" || l.markers.ImageSource == "" {
		return "", false
	}

	start := strings.Index(body, l.markers.RegionStart)
	if start < 0 {
		return "", false
	}
	start += len(l.markers.RegionStart)

	end := strings.Index(body[start:], l.markers.RegionEnd)
	if end < 0 {
		return "", false
	}
	return body[start : start+end], true
}

// ArticleImages fetches an article body and locates its images. A fetch
// failure is returned as an error, distinct from an empty result.
func (l *Locator) ArticleImages(f fetch.Fetcher, articleURL string) ([]string, error) {
	body, err := f.Fetch(articleURL)
	if err != nil {
		return nil, err
	}
	return l.Locate(string(body)), nil
}
