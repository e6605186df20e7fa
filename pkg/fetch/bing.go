package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"bingwall/pkg/config"
	"bingwall/pkg/store"
)

const (
	bingImagesToRequest = 7
	bingImgURLPrefix    = "http://www.bing.com"
	bingImgURLPostfix   = "_1920x1080.jpg"
	bingDateFormat      = "20060102"
)

type bingFeed struct {
	Images []bingImage `json:"images"`
}

type bingImage struct {
	StartDate string `json:"startdate"`
	URLBase   string `json:"urlbase"`
	Copyright string `json:"copyright"`
}

// BingSource reads the Bing HPImageArchive feed. The feed carries no title
// separate from the copyright line, so the copyright doubles as the title.
type BingSource struct {
	feedURL   string
	imgPrefix string
	region    string
	store     *store.Store
	client    *http.Client
	log       *logrus.Entry
}

func NewBingSource(cfg *config.Config, st *store.Store, client *http.Client, log *logrus.Entry) *BingSource {
	return &BingSource{
		feedURL:   cfg.Constant.BingURL,
		imgPrefix: bingImgURLPrefix,
		region:    cfg.Region,
		store:     st,
		client:    client,
		log:       log,
	}
}

func (b *BingSource) Name() string {
	return config.ServiceBing
}

// Candidates fetches the feed and returns the images not yet stored.
func (b *BingSource) Candidates(ctx context.Context) ([]Candidate, error) {
	feedURL := fmt.Sprintf("%s?format=js&idx=0&n=%d&mkt=%s", b.feedURL, bingImagesToRequest, b.region)
	var feed bingFeed
	if err := getJSON(ctx, b.client, feedURL, &feed); err != nil {
		return nil, err
	}

	var out []Candidate
	for _, img := range feed.Images {
		t, err := time.Parse(bingDateFormat, img.StartDate)
		if err != nil {
			b.log.WithField("startdate", img.StartDate).Warn("skipping feed entry with unparseable date")
			continue
		}
		date := t.Format(store.DateFormat)
		if b.store.Has(date, b.region) {
			continue
		}
		srcURL := b.imgPrefix + img.URLBase + bingImgURLPostfix
		out = append(out, Candidate{
			Date:   date,
			Region: b.region,
			URLs:   []string{srcURL},
			Meta: store.Meta{
				Title:     img.Copyright,
				Copyright: img.Copyright,
				SourceURL: srcURL,
			},
		})
	}
	return out, nil
}
