package crawler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/image-weaver/internal/storage"
)

// ListingSelectors locate article headlines on the listing page
type ListingSelectors struct {
	Headline string // one element per article
	Title    string // inside Headline, its text is the article title
	Link     string // inside Headline, its href is the article path
}

// DefaultListingSelectors matches `<h2><a href="..."><span>Title</span></a></h2>`
func DefaultListingSelectors() ListingSelectors {
	return ListingSelectors{
		Headline: "h2",
		Title:    "span",
		Link:     "a[href]",
	}
}

// ParseListing extracts up to limit article jobs from a listing page, in page order.
// Headlines without a title or link are skipped and do not count towards the limit.
func ParseListing(body []byte, sel ListingSelectors, limit int) ([]storage.ArticleJob, error) {
	if limit <= 0 {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}

	var jobs []storage.ArticleJob
	doc.Find(sel.Headline).EachWithBreak(func(i int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Find(sel.Title).First().Text())
		href, ok := s.Find(sel.Link).First().Attr("href")
		href = strings.TrimSpace(href)

		if title == "" || !ok || href == "" {
			logrus.Debugf("Skipping headline %d: title=%q href=%q", i, title, href)
			return true
		}

		jobs = append(jobs, storage.ArticleJob{Title: title, Path: href})
		return len(jobs) < limit
	})

	return jobs, nil
}
