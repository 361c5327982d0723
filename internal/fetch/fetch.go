// Package fetch resolves list data from an ordered set of equivalent endpoints,
// falling back to locally generated rows when none of them answers.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnauthorized means an endpoint rejected the credentials. It ends the
	// attempt and is never masked by simulated data.
	ErrUnauthorized = errors.New("fetch: unauthorized")
	// ErrAllEndpointsFailed means every candidate failed and no generator was supplied.
	ErrAllEndpointsFailed = errors.New("fetch: all endpoints failed")
	// ErrNoCandidates means the request named no endpoint at all.
	ErrNoCandidates = errors.New("fetch: no candidate endpoints")
)

// Outcome labels for observers.
const (
	OutcomeOK           = "ok"
	OutcomeSimulated    = "simulated"
	OutcomeUnauthorized = "unauthorized"
	OutcomeFailed       = "failed"
)

const maxBodyBytes = 8 << 20

// Pagination names the query parameters carrying page and page size. With
// Disabled set, no paging parameters are sent.
type Pagination struct {
	PageParam string
	SizeParam string
	Disabled  bool
}

// DefaultPagination uses page and page_size.
func DefaultPagination() Pagination {
	return Pagination{PageParam: "page", SizeParam: "page_size"}
}

// Generator synthesizes a page of placeholder rows for req.
type Generator func(req Request) Page

// Request describes one resolution over an ordered list of candidates.
type Request struct {
	Resource   string
	Candidates []string
	Params     url.Values
	Page       int
	PageSize   int
	Pagination Pagination
	Generator  Generator
}

// Meta carries pagination details of a Result.
type Meta struct {
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

// Result is the outcome of a resolution. Data and Err are never both set; while
// Loading, neither is meaningful.
type Result struct {
	Data         []Row  `json:"data"`
	Err          error  `json:"-"`
	Loading      bool   `json:"loading"`
	UsedEndpoint string `json:"used_endpoint,omitempty"`
	Simulated    bool   `json:"simulated"`
	Meta         Meta   `json:"meta"`
}

// AttemptError records why one candidate was skipped.
type AttemptError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *AttemptError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// Observer receives one outcome per Fetch.
type Observer interface {
	ObserveFetch(resource, outcome string)
}

// Fetcher issues GET requests against candidate endpoints in order.
type Fetcher struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
}

// NewFetcher builds a Fetcher. Relative candidates are resolved against baseURL.
func NewFetcher(baseURL string, httpClient *http.Client, logger *slog.Logger) (*Fetcher, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{baseURL: base, httpClient: httpClient, logger: logger}, nil
}

// WithObserver attaches an outcome observer.
func (f *Fetcher) WithObserver(o Observer) *Fetcher {
	f.observer = o
	return f
}

// WithTokenSource returns a copy of f whose requests carry bearer tokens from src.
func (f *Fetcher) WithTokenSource(src TokenSource) *Fetcher {
	clone := *f
	client := *f.httpClient
	client.Transport = &AuthTransport{Source: src, Base: f.httpClient.Transport}
	clone.httpClient = &client
	return &clone
}

// Fetch walks req.Candidates strictly in order. The first 2xx response with a
// recognizable body wins. A 401 stops the walk and skips the generator. When
// every candidate fails, the generator's rows are returned marked Simulated.
func (f *Fetcher) Fetch(ctx context.Context, req Request) Result {
	req = withDefaults(req)
	if len(req.Candidates) == 0 && req.Generator == nil {
		return f.finish(req, Result{Err: ErrNoCandidates}, OutcomeFailed)
	}

	var attempts []error
	for _, candidate := range req.Candidates {
		if err := ctx.Err(); err != nil {
			return f.finish(req, Result{Err: err}, OutcomeFailed)
		}
		page, err := f.attempt(ctx, candidate, req)
		if err == nil {
			return f.finish(req, Result{Data: page.Items, UsedEndpoint: candidate, Meta: metaFor(req, page)}, OutcomeOK)
		}
		if errors.Is(err, ErrUnauthorized) {
			return f.finish(req, Result{Err: err, UsedEndpoint: candidate}, OutcomeUnauthorized)
		}
		f.logger.Debug("candidate endpoint failed",
			slog.String("resource", req.Resource),
			slog.String("endpoint", candidate),
			slog.Any("error", err))
		attempts = append(attempts, err)
	}

	if req.Generator != nil {
		page := req.Generator(req)
		f.logger.Info("serving simulated rows",
			slog.String("resource", req.Resource),
			slog.Int("failed_candidates", len(attempts)))
		return f.finish(req, Result{Data: page.Items, Simulated: true, Meta: metaFor(req, page)}, OutcomeSimulated)
	}
	return f.finish(req, Result{Err: fmt.Errorf("%w: %w", ErrAllEndpointsFailed, errors.Join(attempts...))}, OutcomeFailed)
}

func (f *Fetcher) attempt(ctx context.Context, candidate string, req Request) (Page, error) {
	target, err := f.buildURL(candidate, req)
	if err != nil {
		return Page{}, &AttemptError{Endpoint: candidate, Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Page{}, &AttemptError{Endpoint: candidate, Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return Page{}, err
		}
		return Page{}, &AttemptError{Endpoint: candidate, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized {
		return Page{}, fmt.Errorf("%w: %s", ErrUnauthorized, candidate)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Page{}, &AttemptError{Endpoint: candidate, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, &AttemptError{Endpoint: candidate, Err: err}
	}
	page, err := Normalize(body)
	if err != nil {
		return Page{}, &AttemptError{Endpoint: candidate, Status: resp.StatusCode, Err: err}
	}
	return page, nil
}

func (f *Fetcher) buildURL(candidate string, req Request) (string, error) {
	ref, err := url.Parse(candidate)
	if err != nil {
		return "", err
	}
	u := f.baseURL.ResolveReference(ref)
	query := u.Query()
	for key, values := range req.Params {
		query.Del(key)
		for _, v := range values {
			if strings.TrimSpace(v) != "" {
				query.Add(key, v)
			}
		}
	}
	if !req.Pagination.Disabled {
		query.Set(req.Pagination.PageParam, strconv.Itoa(req.Page))
		query.Set(req.Pagination.SizeParam, strconv.Itoa(req.PageSize))
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (f *Fetcher) finish(req Request, res Result, outcome string) Result {
	if f.observer != nil {
		f.observer.ObserveFetch(req.Resource, outcome)
	}
	return res
}

func withDefaults(req Request) Request {
	if req.Pagination.PageParam == "" && req.Pagination.SizeParam == "" && !req.Pagination.Disabled {
		req.Pagination = DefaultPagination()
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 20
	}
	return req
}

func metaFor(req Request, page Page) Meta {
	meta := Meta{Count: page.Count, Next: page.Next, Previous: page.Previous}
	if !req.Pagination.Disabled {
		meta.Page = req.Page
		meta.PageSize = req.PageSize
	}
	return meta
}
