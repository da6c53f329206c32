// Package fetcher retrieves raw rule-list content from remote URLs and local
// files.
package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/sw33tLie/ruleconv/internal/utils"
)

const (
	USER_AGENT = "ruleconv/1.0 (+https://github.com/sw33tLie/ruleconv)"

	DefaultRetries = 3
	DefaultTimeout = 60 * time.Second

	// Upstream lists are a few MB at most; anything larger is a mistake.
	maxBodySize = 64 << 20
)

// Fetcher returns the raw bytes behind a source identifier.
type Fetcher interface {
	Fetch(ctx context.Context, sourceID string) ([]byte, error)
}

// Options configures an HTTP fetcher.
type Options struct {
	Retries   int
	Timeout   time.Duration
	Proxy     string
	UserAgent string
	Insecure  bool
}

// HTTPFetcher fetches http(s) URLs through a retrying client and reads
// file:// URLs and bare paths from disk.
type HTTPFetcher struct {
	client    *retryablehttp.Client
	userAgent string
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Title      string
}

func (e *StatusError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("GET %s: status %d (%s)", e.URL, e.StatusCode, e.Title)
	}
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// New builds an HTTPFetcher. Zero option values fall back to defaults.
func New(opts Options) (*HTTPFetcher, error) {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.Retries
	if opts.Retries < 0 {
		retryClient.RetryMax = 0
	}
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = utils.LeveledLogger{Entry: utils.Log.WithField("component", "fetcher")}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retryClient.HTTPClient.Timeout = timeout

	if opts.Proxy != "" || opts.Insecure {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.Proxy != "" {
			proxyURL, err := url.Parse(opts.Proxy)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy URL: %v", err)
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
		if opts.Insecure {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		retryClient.HTTPClient.Transport = transport
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = USER_AGENT
	}

	return &HTTPFetcher{client: retryClient, userAgent: ua}, nil
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, sourceID string) ([]byte, error) {
	if strings.ContainsAny(sourceID, " \t") {
		return nil, fmt.Errorf("source identifier contains whitespace: %q", sourceID)
	}

	u, err := url.Parse(sourceID)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare path, including Windows drive letters.
		return readFile(sourceID)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return f.get(ctx, sourceID)
	case "file":
		return readFile(u.Path)
	default:
		return nil, fmt.Errorf("unsupported scheme %q in %s", u.Scheme, sourceID)
	}
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain, application/yaml, application/json, */*")
	req.Header.Set("Cache-Control", "no-transform")

	utils.Log.WithFields(logrus.Fields{"url": rawURL}).Debug("Fetching source")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("%s: body exceeds %d bytes", rawURL, maxBodySize)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Title: htmlTitle(resp.Header.Get("Content-Type"), body)}
	}

	// A 200 HTML page is a login wall or an error page, never a rule list.
	if isHTML(resp.Header.Get("Content-Type")) {
		title := htmlTitle("text/html", body)
		if title == "" {
			title = "no title"
		}
		return nil, fmt.Errorf("%s: got an HTML page instead of a rule list (%s)", rawURL, title)
	}

	return body, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func isHTML(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/html")
}

func htmlTitle(contentType string, body []byte) string {
	if !isHTML(contentType) {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}
	title := doc.Find("title").First().Text()
	title = strings.ReplaceAll(strings.ReplaceAll(title, "\n", ""), "\r", "")
	return strings.ToValidUTF8(strings.TrimSpace(title), "")
}
