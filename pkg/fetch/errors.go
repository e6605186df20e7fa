package fetch

import (
	"fmt"
	"net/http"
)

// Kind classifies a feed or download failure.
type Kind string

const (
	KindNetwork     Kind = "network"
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
)

// Error is a failed feed request or image download.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error fetching %s: %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("%s error fetching %s", e.Kind, e.URL)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func statusError(url string, code int) *Error {
	kind := KindNetwork
	switch code {
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	}
	return &Error{Kind: kind, URL: url, Err: fmt.Errorf("unexpected status %d", code)}
}

func transportError(url string, err error) *Error {
	return &Error{Kind: KindNetwork, URL: url, Err: err}
}
