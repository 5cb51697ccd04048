package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"weekplan/internal/fsutil"
	appLog "weekplan/internal/log"
	"weekplan/internal/model"
)

const (
	userAgent = "weekplan/1.0"

	// maxFeedBytes bounds a single calendar download.
	maxFeedBytes = 16 << 20

	// fetchConcurrency bounds parallel subscription downloads.
	fetchConcurrency = 4
)

// Source is one ICS subscription whose events are fixed commitments.
type Source struct {
	// ID prefixes the record IDs of the source's events.
	ID  string
	URL string
}

// FetchResult is the body of one source, fresh or from the disk cache.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool
}

// cacheMeta holds the validators of the last successful download.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// diskCache stores one directory per feed URL with meta.json and body.ics.
type diskCache struct {
	dir string
}

func (c diskCache) path(feedURL string) string {
	sum := sha256.Sum256([]byte(feedURL))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:8]))
}

// load returns the cached validators and body. A missing or corrupt entry
// yields zero values, which simply turns the next request unconditional.
func (c diskCache) load(feedURL string) (cacheMeta, []byte) {
	p := c.path(feedURL)
	body, err := os.ReadFile(filepath.Join(p, "body.ics"))
	if err != nil {
		return cacheMeta{}, nil
	}
	var meta cacheMeta
	raw, err := os.ReadFile(filepath.Join(p, "meta.json"))
	if err == nil {
		_ = json.Unmarshal(raw, &meta)
	}
	if meta.URL != feedURL {
		meta = cacheMeta{}
	}
	return meta, body
}

// store writes the body before the metadata so the validators never
// describe a body that is not on disk.
func (c diskCache) store(meta cacheMeta, body []byte) error {
	p := c.path(meta.URL)
	if err := fsutil.WriteFileAtomic(filepath.Join(p, "body.ics"), body, 0o600); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(filepath.Join(p, "meta.json"), raw, 0o600)
}

// Fetcher downloads ICS feeds with conditional requests and falls back to
// the last cached body when a feed is unreachable.
type Fetcher struct {
	client *http.Client
	cache  diskCache
}

// NewFetcher returns a Fetcher caching under cacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &Fetcher{
		client: &http.Client{Timeout: 15 * time.Second},
		cache:  diskCache{dir: cacheDir},
	}
}

// FetchAll fetches sources concurrently. Results keep the order of
// sources and only include sources that produced a body; failures are
// logged and returned separately.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []*model.SourceError) {
	slots := make([]*FetchResult, len(sources))
	var (
		mu   sync.Mutex
		errs []*model.SourceError
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, src := range sources {
		g.Go(func() error {
			res, err := f.FetchOne(ctx, src)
			if err != nil {
				appLog.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
				mu.Lock()
				errs = append(errs, &model.SourceError{SourceID: src.ID, Err: err})
				mu.Unlock()
				return nil
			}
			slots[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	results := make([]FetchResult, 0, len(sources))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, errs
}

// FetchOne fetches a single source, honoring ETag and Last-Modified.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}
	meta, cached := f.cache.load(src.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/calendar")
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("ics fetch start", "id", src.ID, "url", redactURL(src.URL))
	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(src, cached, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
		if err != nil {
			return fallback(src, cached, err)
		}
		if len(body) > maxFeedBytes {
			return fallback(src, cached, fmt.Errorf("feed larger than %d bytes", maxFeedBytes))
		}
		fresh := cacheMeta{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			FetchedAt:    time.Now().UTC(),
		}
		if err := f.cache.store(fresh, body); err != nil {
			appLog.Error("ics cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
		}
		appLog.Info("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, errors.New("304 Not Modified without a cached body")
		}
		appLog.Debug("ics feed not modified", "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil

	default:
		return fallback(src, cached, errors.New(resp.Status))
	}
}

// fallback serves the cached body when the live feed failed.
func fallback(src Source, cached []byte, cause error) (FetchResult, error) {
	if len(cached) == 0 {
		return FetchResult{}, cause
	}
	appLog.Error("ics feed unavailable, using cached body", cause, "id", src.ID, "url", redactURL(src.URL))
	return FetchResult{Source: src, Body: cached, FromCache: true}, nil
}

// redactURL keeps only scheme and host of a feed URL for logging; private
// calendar URLs carry their secret in the path or query.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "ics://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + "/...(redacted)"
}
