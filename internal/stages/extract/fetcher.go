// internal/stages/extract/fetcher.go
package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"research-pipeline/internal/common/errors"
	"research-pipeline/internal/models"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Fetcher retrieves readable text for one URL using one strategy.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, strategy models.ExtractionStrategy) (string, error)
}

// HTTPFetcher implements all three strategies over plain HTTP: direct hits
// the URL itself, rendered goes through a rendering service, cached through a
// cache mirror. Readable text is pulled from the HTML with goquery.
type HTTPFetcher struct {
	client       *http.Client
	rendererBase string // e.g. http://renderer:3000/render?url=
	cacheBase    string // e.g. https://cache.example/page?u=
	maxBodyBytes int
}

func NewHTTPFetcher(timeout time.Duration, rendererBase, cacheBase string, maxBodyBytes int) *HTTPFetcher {
	return &HTTPFetcher{
		client:       &http.Client{Timeout: timeout},
		rendererBase: rendererBase,
		cacheBase:    cacheBase,
		maxBodyBytes: maxBodyBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, strategy models.ExtractionStrategy) (string, error) {
	target := rawURL
	switch strategy {
	case models.StrategyRendered:
		if f.rendererBase == "" {
			return "", errors.NewFetchFailedError(rawURL, fmt.Errorf("rendered strategy not configured"))
		}
		target = f.rendererBase + url.QueryEscape(rawURL)
	case models.StrategyCached:
		if f.cacheBase == "" {
			return "", errors.NewFetchFailedError(rawURL, fmt.Errorf("cached strategy not configured"))
		}
		target = f.cacheBase + url.QueryEscape(rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", errors.NewFetchFailedError(rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", errors.NewFetchFailedError(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.NewFetchFailedError(rawURL, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.maxBodyBytes)))
	if err != nil {
		return "", errors.NewFetchFailedError(rawURL, err)
	}

	return ExtractReadableText(string(body))
}

// ExtractReadableText strips boilerplate elements and returns the page text.
func ExtractReadableText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, header, footer, aside, noscript, iframe").Remove()

	// Prefer article/main blocks when the page declares them.
	root := doc.Find("article, main").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var parts []string
	root.Find("h1, h2, h3, p, li").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		if text := strings.TrimSpace(root.Text()); text != "" {
			parts = append(parts, strings.Join(strings.Fields(text), " "))
		}
	}

	return strings.Join(parts, "\n"), nil
}
