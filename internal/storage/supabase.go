package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// defaultPageSize stays under the Supabase default max-rows of 1000 so a
// short page always means the end of the result.
const defaultPageSize = 500

// SupabaseRecorder stores entries in a Supabase table through its PostgREST
// endpoint.
type SupabaseRecorder struct {
	baseURL  string
	key      string
	table    string
	client   *http.Client
	pageSize int
}

func NewSupabaseRecorder(baseURL, serviceKey, table string, client *http.Client) (*SupabaseRecorder, error) {
	if strings.TrimSpace(baseURL) == "" || strings.TrimSpace(serviceKey) == "" {
		return nil, errors.New("supabase url and service key are required")
	}
	if table == "" {
		return nil, errors.New("supabase table is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &SupabaseRecorder{
		baseURL:  strings.TrimRight(baseURL, "/"),
		key:      serviceKey,
		table:    table,
		client:   client,
		pageSize: defaultPageSize,
	}, nil
}

func (r *SupabaseRecorder) endpoint() string {
	return r.baseURL + "/rest/v1/" + url.PathEscape(r.table)
}

func (r *SupabaseRecorder) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", r.key)
	req.Header.Set("Authorization", "Bearer "+r.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (r *SupabaseRecorder) AppendEntry(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	req, err := r.newRequest(ctx, http.MethodPost, r.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build insert request: %w", err)
	}
	req.Header.Set("Prefer", "return=minimal")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("supabase insert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError("insert", resp)
	}
	return nil
}

// LoadEntries filters on the timestamp column server side and pages through
// the result, since PostgREST truncates a single response at max-rows.
func (r *SupabaseRecorder) LoadEntries(ctx context.Context, from, to time.Time) ([]Entry, error) {
	var entries []Entry
	for offset := 0; ; offset += r.pageSize {
		page, err := r.loadPage(ctx, from, to, offset)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page...)
		if len(page) < r.pageSize {
			return entries, nil
		}
	}
}

func (r *SupabaseRecorder) loadPage(ctx context.Context, from, to time.Time, offset int) ([]Entry, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Add("timestamp", "gte."+from.UTC().Format(time.RFC3339Nano))
	q.Add("timestamp", "lt."+to.UTC().Format(time.RFC3339Nano))
	q.Set("order", "timestamp.asc,turn_id.asc")
	q.Set("limit", strconv.Itoa(r.pageSize))
	q.Set("offset", strconv.Itoa(offset))
	req, err := r.newRequest(ctx, http.MethodGet, r.endpoint()+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build select request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase select: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, statusError("select", resp)
	}

	var page []Entry
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	return page, nil
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("supabase %s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}

// Multi writes to every recorder and reads from the first one.
type Multi []Recorder

func (m Multi) AppendEntry(ctx context.Context, entry Entry) error {
	var errs []error
	for _, r := range m {
		if err := r.AppendEntry(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) LoadEntries(ctx context.Context, from, to time.Time) ([]Entry, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].LoadEntries(ctx, from, to)
}
