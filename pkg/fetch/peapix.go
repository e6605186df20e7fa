package fetch

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"bingwall/pkg/config"
	"bingwall/pkg/store"
)

// The Peapix feed carries no dates, only sequential page ids shared across
// all countries. Dates are inferred from the id spacing: consecutive days
// for one country differ by the number of countries the site publishes, so
// a single known (id, date) pair anchors the whole feed.

// defaultPageRecordsToKeep is 12 countries times 7 feed days.
const defaultPageRecordsToKeep = 84

var pageIDPattern = regexp.MustCompile(`/bing/(\d+)(?:/|$)`)

type peapixItem struct {
	Title     string `json:"title"`
	Copyright string `json:"copyright"`
	FullURL   string `json:"fullUrl"`
	ThumbURL  string `json:"thumbUrl"`
	ImageURL  string `json:"imageUrl"`
	PageURL   string `json:"pageUrl"`
}

type datedItem struct {
	peapixItem
	id   int64
	date string
}

// PeapixSource reads the Peapix country feed and anchors its dates through
// the page table in the catalogue.
type PeapixSource struct {
	feedURL   string
	country   string
	countries []string
	store     *store.Store
	client    *http.Client
	log       *logrus.Entry
}

func NewPeapixSource(cfg *config.Config, st *store.Store, client *http.Client, log *logrus.Entry) *PeapixSource {
	return &PeapixSource{
		feedURL:   cfg.Constant.PeapixURL,
		country:   cfg.Region,
		countries: cfg.Constant.AltPeapixRegion,
		store:     st,
		client:    client,
		log:       log,
	}
}

func (p *PeapixSource) Name() string {
	return config.ServicePeapix
}

// Candidates fetches the country feed, infers dates, records the pages in
// the catalogue, and returns the images not yet stored.
func (p *PeapixSource) Candidates(ctx context.Context) ([]Candidate, error) {
	feedURL := fmt.Sprintf("%s?country=%s", p.feedURL, p.country)
	var items []peapixItem
	if err := getJSON(ctx, p.client, feedURL, &items); err != nil {
		return nil, err
	}

	dated, err := p.inferDates(items)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, d := range dated {
		if p.store.Has(d.date, p.country) {
			continue
		}
		out = append(out, Candidate{
			Date:   d.date,
			Region: p.country,
			URLs:   []string{d.ImageURL, d.FullURL, d.ThumbURL},
			Meta: store.Meta{
				Title:     d.Title,
				Copyright: d.Copyright,
				PageURL:   d.PageURL,
				SourceURL: d.ImageURL,
			},
		})
	}
	return out, nil
}

func (p *PeapixSource) inferDates(items []peapixItem) ([]datedItem, error) {
	if len(items) < 2 {
		return nil, fmt.Errorf("only %d feed page(s), cannot infer country count", len(items))
	}

	dated := make([]datedItem, 0, len(items))
	for _, it := range items {
		id, err := extractPageID(it.PageURL)
		if err != nil {
			return nil, err
		}
		dated = append(dated, datedItem{peapixItem: it, id: id})
	}
	sort.Slice(dated, func(i, j int) bool { return dated[i].id > dated[j].id })

	maxID, minID := dated[0].id, dated[len(dated)-1].id
	span := maxID - minID
	countryCount := span / int64(len(dated)-1)
	if countryCount == 0 {
		return nil, fmt.Errorf("feed page ids %d..%d are too dense to infer country count", minID, maxID)
	}

	existing, err := p.store.Catalog().ExistingPages()
	if err != nil {
		return nil, err
	}

	// Country-aware baseline: the newest page we already dated.
	var baseID int64 = -1
	var baseDateStr string
	for id, pg := range existing {
		if id < maxID && pg.Country == p.country && id > baseID {
			baseID = id
			baseDateStr = pg.Date
		}
	}
	if baseID < 0 {
		return nil, fmt.Errorf("no dated page before id %d for country %q to infer from", maxID, p.country)
	}
	baseDate, err := time.Parse(store.DateFormat, baseDateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse baseline date %q: %w", baseDateStr, err)
	}

	pages := make([]store.Page, 0, len(dated))
	for i := range dated {
		offsetDays := floorDiv(dated[i].id-baseID, countryCount)
		dated[i].date = baseDate.AddDate(0, 0, int(offsetDays)).Format(store.DateFormat)
		pages = append(pages, store.Page{
			ID:      dated[i].id,
			Country: p.country,
			Date:    dated[i].date,
			PageURL: dated[i].PageURL,
		})
	}
	p.log.WithFields(logrus.Fields{"country_count": countryCount, "max_id": maxID, "base_date": baseDateStr}).Debug("inferred feed dates")

	// An uneven span means the site's country set changed mid-feed, so
	// sibling ids cannot be trusted. Record only what we saw.
	if span%int64(len(dated)-1) != 0 {
		if err := p.store.Catalog().UpsertPages(pages, 0); err != nil {
			return nil, err
		}
		return dated, nil
	}

	countryIndex := -1
	for i, c := range p.countries {
		if c == p.country {
			countryIndex = i
			break
		}
	}
	if countryIndex < 0 {
		return nil, fmt.Errorf("country %q is not in the known country list", p.country)
	}

	// Sibling pages for the other countries share the date of their row.
	var full []store.Page
	for _, d := range dated {
		for i, derivedCountry := range p.countries {
			derivedID := d.id - int64(countryIndex-i)
			if _, ok := existing[derivedID]; ok {
				continue
			}
			full = append(full, store.Page{
				ID:      derivedID,
				Country: derivedCountry,
				Date:    d.date,
				PageURL: fmt.Sprintf("https://peapix.com/bing/%d", derivedID),
			})
		}
	}
	keep := defaultPageRecordsToKeep
	if n := int(countryCount) * len(dated); n > keep {
		keep = n
	}
	if err := p.store.Catalog().UpsertPages(full, keep); err != nil {
		return nil, err
	}
	return dated, nil
}

func extractPageID(pageURL string) (int64, error) {
	m := pageIDPattern.FindStringSubmatch(pageURL)
	if m == nil {
		return 0, fmt.Errorf("invalid page URL format: %s", pageURL)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid page id in %s: %w", pageURL, err)
	}
	return id, nil
}

// floorDiv divides rounding toward negative infinity, so pages older than
// the baseline land on the right day.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
