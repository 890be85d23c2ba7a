package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"watch-harvest/pkg/api"
	"watch-harvest/pkg/metrics"
	"watch-harvest/pkg/models"
	"watch-harvest/pkg/store"
)

func newTestServer(t *testing.T) *server {
	t.Helper()
	st, err := store.Open(context.Background(), "file:"+filepath.Join(t.TempDir(), "products.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	for _, rec := range []models.ProductRecord{
		{Reference: "15510ST.OO.1320ST.06", Collection: "Royal Oak", Price: models.UnknownPrice(), Movement: models.NewMovementSpec()},
		{Reference: "26240ST.OO.1320ST.02", Collection: "Royal Oak", Price: models.UnknownPrice(), Movement: models.NewMovementSpec()},
		{Reference: "5711/1A-010", Collection: "Nautilus", Price: models.UnknownPrice(), Movement: models.NewMovementSpec()},
	} {
		if _, err := st.Upsert(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
	return &server{store: st, metrics: metrics.NewRegistry(), specDir: "./"}
}

func TestRecordsHandler_Problems(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "Unknown reference",
			method:         http.MethodGet,
			path:           "/records/99999XX",
			expectedStatus: http.StatusNotFound,
			expectedDetail: "Record not found",
		},
		{
			name:           "Wrong method",
			method:         http.MethodPost,
			path:           "/records",
			expectedStatus: http.StatusMethodNotAllowed,
			expectedDetail: "Use GET",
		},
		{
			name:           "Invalid limit",
			method:         http.MethodGet,
			path:           "/records?limit=abc",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid limit: abc",
		},
		{
			name:           "Unknown path",
			method:         http.MethodGet,
			path:           "/stores",
			expectedStatus: http.StatusNotFound,
			expectedDetail: "Unknown path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}

			rr := httptest.NewRecorder()
			handler := http.HandlerFunc(s.rootHandler)

			handler.ServeHTTP(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v",
					status, tt.expectedStatus)
			}

			expectedContentType := "application/problem+json"
			if contentType := rr.Header().Get("Content-Type"); contentType != expectedContentType {
				t.Errorf("handler returned wrong content type: got %v want %v",
					contentType, expectedContentType)
			}

			var pd api.ProblemDetails
			if err := json.Unmarshal(rr.Body.Bytes(), &pd); err != nil {
				t.Errorf("handler returned invalid JSON: %v. Body: %s", err, rr.Body.String())
			}

			if pd.Status != tt.expectedStatus {
				t.Errorf("JSON status mismatch: got %v want %v", pd.Status, tt.expectedStatus)
			}
			if pd.Type != "about:blank" {
				t.Errorf("JSON type mismatch: got %v", pd.Type)
			}
			if !strings.Contains(pd.Detail, tt.expectedDetail) {
				t.Errorf("JSON detail mismatch: got %q, want substring %q", pd.Detail, tt.expectedDetail)
			}
			if pd.Instance != req.URL.Path {
				t.Errorf("JSON instance mismatch: got %v want %v", pd.Instance, req.URL.Path)
			}
		})
	}
}

func TestRecordsHandler_Get(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/records/15510st.oo.1320st.06", "/records/5711/1A-010"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		s.rootHandler(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("%s: got status %v, body %s", path, rr.Code, rr.Body.String())
		}
		var rec models.ProductRecord
		if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
			t.Fatalf("%s: invalid JSON: %v", path, err)
		}
		want := strings.ToUpper(strings.TrimPrefix(path, "/records/"))
		if rec.Reference != want {
			t.Errorf("%s: got reference %q want %q", path, rec.Reference, want)
		}
	}
}

func TestRecordsHandler_List(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?collection=royal+oak", 2},
		{"?collection=Nautilus", 1},
		{"?limit=1", 1},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/records"+tt.query, nil)
		rr := httptest.NewRecorder()
		s.rootHandler(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("%q: got status %v", tt.query, rr.Code)
		}
		var recs []models.ProductRecord
		if err := json.Unmarshal(rr.Body.Bytes(), &recs); err != nil {
			t.Fatalf("%q: invalid JSON: %v", tt.query, err)
		}
		if len(recs) != tt.want {
			t.Errorf("%q: got %d records want %d", tt.query, len(recs), tt.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	h := s.handler()

	for _, path := range []string{"/records", "/records/15510ST.OO.1320ST.06", "/records/99999XX"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rr.Body.String()
	for _, want := range []string{
		`harvest_http_requests_total{code="200",method="get"} 2`,
		`harvest_http_requests_total{code="404",method="get"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s:\n%s", want, body)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{models.ErrNoURLs, exitNoURLs},
		{fmt.Errorf("crawl: %w", models.ErrNoURLs), exitNoURLs},
		{&models.ConfigurationError{Field: "site", Detail: "missing"}, exitFatal},
		{errors.New("browser died"), exitFatal},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func writeSites(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_ConfigurationErrors(t *testing.T) {
	sites := writeSites(t, `[{"name": "example", "product_pattern": "/en/watch/", "seeds": ["https://watches.example.com/en/watches"]}]`)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"scrape"}},
		{"missing site", []string{"crawl", "--sites", sites, "--all"}},
		{"unknown site", []string{"crawl", "--sites", sites, "--site", "nope", "--all"}},
		{"missing collections", []string{"crawl", "--sites", sites, "--site", "example"}},
		{"missing sites file", []string{"crawl", "--sites", filepath.Join(t.TempDir(), "none.json"), "--site", "example", "--all"}},
		{"job without url", []string{"job", "--site", "example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), tt.args, &stdout, &stderr); code != exitFatal {
				t.Errorf("got exit code %d want %d; stderr: %s", code, exitFatal, stderr.String())
			}
		})
	}
}

func TestRun_ZeroURLsExitsTwo(t *testing.T) {
	listing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><body><a href="/en/stores">Stores</a></body></html>`)
	}))
	defer listing.Close()

	sites := writeSites(t, fmt.Sprintf(`[{
		"name": "static",
		"static": true,
		"product_pattern": "/en/watch/[a-z0-9-]+/[0-9a-z.]+$",
		"seeds": [%q]
	}]`, listing.URL+"/en/watches"))

	var stdout, stderr bytes.Buffer
	args := []string{"--sites", sites, "--site", "static", "--all", "--state-dir", t.TempDir()}
	if code := run(context.Background(), args, &stdout, &stderr); code != exitNoURLs {
		t.Errorf("got exit code %d want %d; stderr: %s", code, exitNoURLs, stderr.String())
	}
}
