package harvest

import (
	"errors"
	"net/http"
	"time"
)

// ErrNoResult marks a fetch that produced no usable document after retries.
var ErrNoResult = errors.New("no result")

// DiscoveryKey is an ordered pagination unit, typically a year.
type DiscoveryKey int

// Request describes how to fetch one resource.
type Request struct {
	Method  string
	URL     string
	Form    map[string]string
	Referer string
}

// NewGet builds a GET request.
func NewGet(url string) Request {
	return Request{Method: http.MethodGet, URL: url}
}

// NewPost builds a form-encoded POST request.
func NewPost(url string, form map[string]string) Request {
	return Request{Method: http.MethodPost, URL: url, Form: form}
}

// Target is one fetchable entity discovered for a key or listed for a batch.
type Target struct {
	ID      string
	Name    string
	Key     DiscoveryKey
	Request Request
	Attrs   map[string]string
}

// RawDocument is a fetched body tied to the request that produced it.
type RawDocument struct {
	URL        string
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
}

// Report summarises one adapter run.
type Report struct {
	RunID         string         `json:"run_id"`
	Source        string         `json:"source"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Files         []string       `json:"files"`
	Records       map[string]int `json:"records"`
	Failed        int            `json:"failed"`
	KeysProcessed int            `json:"keys_processed"`
}
