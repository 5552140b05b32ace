package crawler

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func article(region string) string {
	return `<html><body><img src="/header.png">` +
		`<div id="post-content-body">` + region + `</div>` +
		`<footer><img src="/footer.png"></footer></body></html>`
}

func TestLocate(t *testing.T) {
	l := NewLocator(DefaultMarkers())

	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "images inside region only",
			body: article(`<p>x</p><img src="https://a/1.png"><img src="//b/2.jpg" alt="two">`),
			want: []string{"https://a/1.png", "//b/2.jpg"},
		},
		{
			name: "duplicates kept in order",
			body: article(`<img src="/a.png"><img src="/b.png"><img src="/a.png">`),
			want: []string{"/a.png", "/b.png", "/a.png"},
		},
		{
			name: "region without images",
			body: article(`<p>text only</p>`),
			want: nil,
		},
		{
			name: "missing start marker",
			body: `<div class="other"><img src="/a.png"></div>`,
			want: nil,
		},
		{
			name: "missing end marker",
			body: `<div id="post-content-body"><img src="/a.png"><img src="/b.png">`,
			want: nil,
		},
		{
			name: "end marker only before start",
			body: `</div><div id="post-content-body"><img src="/a.png">`,
			want: nil,
		},
		{
			name: "region stops at first closing div",
			body: `<div id="post-content-body"><img src="/in.png"></div><img src="/out.png"></div>`,
			want: []string{"/in.png"},
		},
		{
			name: "unterminated attribute",
			body: article(`<img src="/ok.png"><img src="/broken.png`),
			want: []string{"/ok.png"},
		},
		{
			name: "other attribute order is not matched",
			body: article(`<img alt="x" src="/a.png">`),
			want: nil,
		},
	}

	for _, tt := range tests {
		got := l.Locate(tt.body)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: Locate() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLocateCountsOnlyRegionImages(t *testing.T) {
	l := NewLocator(DefaultMarkers())

	for k := 0; k <= 5; k++ {
		for m := 0; m <= 3; m++ {
			var region, outside strings.Builder
			for i := 0; i < k; i++ {
				region.WriteString(`<p><img src="/in.png"></p>`)
			}
			for i := 0; i < m; i++ {
				outside.WriteString(`<img src="/out.png">`)
			}
			body := outside.String() + `<div id="post-content-body">` + region.String() + `</div>` + outside.String()

			if got := len(l.Locate(body)); got != k {
				t.Errorf("k=%d m=%d: Locate() returned %d images, want %d", k, m, got, k)
			}
		}
	}
}

func TestLocateCustomMarkers(t *testing.T) {
	l := NewLocator(Markers{RegionStart: "<article>", RegionEnd: "</article>", ImageSource: "data-src='"})

	body := `<article><img data-src='/lazy.png'><img src="/eager.png"></article>`
	got := l.Locate(body)
	want := []string{"/lazy.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Locate() = %q, want %q", got, want)
	}
}

type mapFetcher struct {
	pages map[string]string
}

func (f *mapFetcher) Fetch(url string) ([]byte, error) {
	body, ok := f.pages[url]
	if !ok {
		return nil, errors.New("unreachable: " + url)
	}
	return []byte(body), nil
}

func TestArticleImages(t *testing.T) {
	l := NewLocator(DefaultMarkers())
	f := &mapFetcher{pages: map[string]string{
		"https://site/with":    article(`<img src="/a.png">`),
		"https://site/without": article(`<p>none</p>`),
	}}

	images, err := l.ArticleImages(f, "https://site/with")
	if err != nil || len(images) != 1 {
		t.Errorf("ArticleImages(with) = %q, %v; want one image", images, err)
	}

	images, err = l.ArticleImages(f, "https://site/without")
	if err != nil {
		t.Errorf("ArticleImages(without): unexpected error %v", err)
	}
	if len(images) != 0 {
		t.Errorf("ArticleImages(without) = %q, want empty", images)
	}

	if _, err := l.ArticleImages(f, "https://site/missing"); err == nil {
		t.Error("ArticleImages(missing) should report the fetch failure")
	}
}
