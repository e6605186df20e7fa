// Package fetch downloads daily wallpaper images from the configured feed
// and stores the ones not already on disk.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bingwall/pkg/config"
	"bingwall/pkg/store"
)

const (
	feedTimeout     = 5 * time.Second
	downloadTimeout = 10 * time.Second
)

// Candidate is one image a feed offers that is not yet stored. URLs is a
// fallback chain, best quality first: the first one that downloads wins.
type Candidate struct {
	Date   string
	Region string
	URLs   []string
	Meta   store.Meta
}

// Source lists the images a feed currently offers for download.
type Source interface {
	Name() string
	Candidates(ctx context.Context) ([]Candidate, error)
}

// Result summarizes one fetch pass.
type Result struct {
	Downloaded []store.ImageRecord
	Failed     int
}

// Fetcher drives a feed source and saves whatever is missing from the store.
type Fetcher struct {
	src   Source
	store *store.Store
	log   *logrus.Entry
}

// New builds a Fetcher for the configured download service.
func New(cfg *config.Config, st *store.Store, log *logrus.Entry) *Fetcher {
	client := &http.Client{Timeout: feedTimeout}
	var src Source
	switch cfg.DLService {
	case config.ServicePeapix:
		src = NewPeapixSource(cfg, st, client, log)
	default:
		src = NewBingSource(cfg, st, client, log)
	}
	return &Fetcher{src: src, store: st, log: log}
}

// Source returns the active feed source.
func (f *Fetcher) Source() Source {
	return f.src
}

// FetchNew asks the source for missing images and downloads them with a
// small worker pool. Feed-level failures return an error; individual image
// failures are logged and counted in the result.
func (f *Fetcher) FetchNew(ctx context.Context) (Result, error) {
	candidates, err := f.src.Candidates(ctx)
	if err != nil {
		return Result{}, err
	}
	f.log.WithFields(logrus.Fields{"service": f.src.Name(), "missing": len(candidates)}).Info("checked feed for new images")
	if len(candidates) == 0 {
		return Result{}, nil
	}

	workers := runtime.NumCPU()
	if workers > len(candidates) {
		workers = len(candidates)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result Result
		jobs   = make(chan Candidate)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				rec, err := f.download(ctx, c)
				mu.Lock()
				if err != nil {
					result.Failed++
					f.log.WithError(err).WithFields(logrus.Fields{"date": c.Date, "region": c.Region}).Warn("failed to download image")
				} else {
					result.Downloaded = append(result.Downloaded, rec)
					f.log.WithFields(logrus.Fields{"date": c.Date, "region": c.Region}).Info("downloaded image")
				}
				mu.Unlock()
			}
		}()
	}
	for _, c := range candidates {
		jobs <- c
	}
	close(jobs)
	wg.Wait()
	return result, nil
}

func (f *Fetcher) download(ctx context.Context, c Candidate) (store.ImageRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	client := &http.Client{}
	var lastErr error
	for _, u := range c.URLs {
		if u == "" {
			continue
		}
		data, err := fetchBytes(ctx, client, u)
		if err != nil {
			lastErr = err
			continue
		}
		rec, err := f.store.Save(data, c.Date, c.Region, c.Meta)
		if err != nil {
			return store.ImageRecord{}, err
		}
		return rec, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no download URL for %s_%s", c.Date, c.Region)
	}
	return store.ImageRecord{}, lastErr
}

func fetchBytes(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, transportError(url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(url, err)
	}
	return data, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	data, err := fetchBytes(ctx, client, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode feed response from %s: %w", url, err)
	}
	return nil
}
