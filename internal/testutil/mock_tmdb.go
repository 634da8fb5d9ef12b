// Package testutil provides testing utilities for the TMDB fetch pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockTMDB is a configurable mock TMDB server for testing.
type MockTMDB struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	requestCount int
	pathCounts   map[string]int
	inFlight     int
	maxInFlight  int
	lastQuery    url.Values
}

// NewMockTMDB creates a new mock TMDB server.
func NewMockTMDB() *MockTMDB {
	mock := &MockTMDB{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastQuery = r.URL.Query()
		mock.inFlight++
		if mock.inFlight > mock.maxInFlight {
			mock.maxInFlight = mock.inFlight
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		defer func() {
			mock.mu.Lock()
			mock.inFlight--
			mock.mu.Unlock()
		}()

		if exists {
			handler(w, r)
			return
		}

		writeResponse(w, NewNotFoundResponse())
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockTMDB) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockTMDB) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockTMDB) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.maxInFlight = 0
	m.lastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockTMDB) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockTMDB) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetSequence answers the n-th request to path with responses[n]; the last
// response repeats once the sequence is used up.
func (m *MockTMDB) SetSequence(path string, responses ...MockResponse) {
	var (
		mu   sync.Mutex
		next int
	)
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[min(next, len(responses)-1)]
		next++
		mu.Unlock()

		writeResponse(w, resp)
	})
}

// SetDiscover serves a discover endpoint (e.g. "/discover/movie") with
// totalPages and the ids of each page. Pages without ids return an empty
// result list; pages listed in failing return 500.
func (m *MockTMDB) SetDiscover(path string, totalPages int, pages map[int][]int64, failing ...int) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil || page < 1 {
			writeResponse(w, MockResponse{StatusCode: http.StatusBadRequest, Body: `{"status_message":"invalid page"}`})
			return
		}
		for _, f := range failing {
			if f == page {
				writeResponse(w, NewServerErrorResponse())
				return
			}
		}

		results := make([]map[string]any, 0, len(pages[page]))
		for _, id := range pages[page] {
			results = append(results, map[string]any{"id": id, "title": fmt.Sprintf("Item %d", id)})
		}
		body, _ := json.Marshal(map[string]any{
			"page":          page,
			"total_pages":   totalPages,
			"total_results": totalPages * 20,
			"results":       results,
		})
		writeResponse(w, NewJSONResponse(string(body)))
	})
}

// SetItem serves all four sub-resources of an item under base
// (e.g. "/movie/42") with small valid payloads.
func (m *MockTMDB) SetItem(base string, id int64) {
	m.SetResponse(base, NewJSONResponse(fmt.Sprintf(`{"id":%d,"title":"Item %d"}`, id, id)))
	m.SetResponse(base+"/credits", NewJSONResponse(fmt.Sprintf(`{"id":%d,"cast":[],"crew":[]}`, id)))
	m.SetResponse(base+"/images", NewJSONResponse(fmt.Sprintf(`{"id":%d,"backdrops":[],"posters":[{"file_path":"/p.jpg"}]}`, id)))
	m.SetResponse(base+"/videos", NewJSONResponse(fmt.Sprintf(`{"id":%d,"results":[{"key":"abc","site":"YouTube"}]}`, id)))
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockTMDB) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockTMDB) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// GetPrefixCount returns the number of requests whose path starts with prefix.
func (m *MockTMDB) GetPrefixCount(prefix string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for p, n := range m.pathCounts {
		if strings.HasPrefix(p, prefix) {
			total += n
		}
	}
	return total
}

// GetMaxInFlight returns the highest number of concurrent requests seen.
func (m *MockTMDB) GetMaxInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxInFlight
}

// GetLastQuery returns the query of the most recent request.
func (m *MockTMDB) GetLastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json;charset=utf-8")
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewJSONResponse creates a 200 OK response with a JSON body.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: body}
}

// NewNotFoundResponse creates a TMDB-style 404 response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"success":false,"status_code":34,"status_message":"The resource you requested could not be found."}`,
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"status_code":25,"status_message":"Your request count is over the allowed limit."}`,
		Headers:    map[string]string{"Retry-After": strconv.Itoa(retryAfter)},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"status_code":11,"status_message":"Internal error"}`,
	}
}
