// Package dnactest provides an in-process DNA Center controller for tests.
package dnactest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/gorilla/mux"

	"dnac-sync/internal/dnac"
)

// Token is the auth token handed out by the fake controller
const Token = "fake-dnac-token"

// Server is a TLS test server speaking the subset of the intent API used by the sync
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	users       map[string]string
	devices     []dnac.Device
	sites       []dnac.Site
	memberships map[string]string
	failures    map[string]int
	requests    map[string]int
}

// NewServer starts a fake controller accepting the given username and password
func NewServer(username, password string) *Server {
	s := &Server{
		users:       map[string]string{username: password},
		memberships: make(map[string]string),
		failures:    make(map[string]int),
		requests:    make(map[string]int),
	}

	r := mux.NewRouter()
	r.HandleFunc("/dna/system/api/v1/auth/token", s.handleToken).Methods(http.MethodPost)
	r.HandleFunc("/dna/intent/api/v1/network-device", s.requireToken(s.handleDevices)).Methods(http.MethodGet)
	r.HandleFunc("/dna/intent/api/v1/site/count", s.requireToken(s.handleSiteCount)).Methods(http.MethodGet)
	r.HandleFunc("/dna/intent/api/v1/site", s.requireToken(s.handleSites)).Methods(http.MethodGet)
	r.HandleFunc("/dna/intent/api/v1/membership/{siteId}", s.requireToken(s.handleMembership)).Methods(http.MethodGet)

	s.Server = httptest.NewTLSServer(r)
	return s
}

// Hostname returns a value usable as a tenant hostname
func (s *Server) Hostname() string {
	return s.URL
}

// SetDevices replaces the device inventory
func (s *Server) SetDevices(devices []dnac.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = devices
}

// SetSites replaces the site list
func (s *Server) SetSites(sites []dnac.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites = sites
}

// SetMembership sets the membership of a site to the given serial numbers
func (s *Server) SetMembership(siteID string, serials ...string) {
	devices := make([]map[string]string, 0, len(serials))
	for _, serial := range serials {
		devices = append(devices, map[string]string{"serialNumber": serial})
	}

	payload := map[string]interface{}{
		"site":   map[string]interface{}{"response": []map[string]string{{"id": siteID}}},
		"device": []map[string]interface{}{{"response": devices, "siteId": siteID}},
	}

	raw, _ := json.Marshal(payload)
	s.SetRawMembership(siteID, string(raw))
}

// SetRawMembership sets the exact response body of a membership call
func (s *Server) SetRawMembership(siteID, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[siteID] = body
}

// FailPath makes every request to the given path return the status code. A
// zero status code clears the failure.
func (s *Server) FailPath(path string, statusCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if statusCode == 0 {
		delete(s.failures, path)
		return
	}
	s.failures[path] = statusCode
}

// Requests returns how many requests hit the given path
func (s *Server) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

func (s *Server) record(r *http.Request) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.URL.Path]++
	code, failed := s.failures[r.URL.Path]
	return code, failed
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if code, failed := s.record(r); failed {
		http.Error(w, "forced failure", code)
		return
	}

	username, password, ok := r.BasicAuth()
	s.mu.Lock()
	expected, known := s.users[username]
	s.mu.Unlock()

	if !ok || !known || expected != password {
		http.Error(w, `{"error":"Authentication has failed. Please provide valid credentials."}`, http.StatusUnauthorized)
		return
	}

	writeJSON(w, map[string]string{"Token": Token})
}

func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if code, failed := s.record(r); failed {
			http.Error(w, "forced failure", code)
			return
		}
		if r.Header.Get("X-Auth-Token") != Token {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	devices := s.devices
	s.mu.Unlock()

	page, err := paginate(r, len(devices))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]interface{}{"response": devices[page.start:page.end], "version": "1.0"})
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sites := s.sites
	s.mu.Unlock()

	page, err := paginate(r, len(sites))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]interface{}{"response": sites[page.start:page.end], "version": "1.0"})
}

func (s *Server) handleSiteCount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	count := len(s.sites)
	s.mu.Unlock()

	writeJSON(w, map[string]interface{}{"response": count, "version": "1.0"})
}

func (s *Server) handleMembership(w http.ResponseWriter, r *http.Request) {
	siteID := mux.Vars(r)["siteId"]

	s.mu.Lock()
	body, ok := s.memberships[siteID]
	s.mu.Unlock()

	if !ok {
		body = `{"site":{"response":[]},"device":[]}`
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

type window struct {
	start, end int
}

// paginate applies the 1-based offset and limit query parameters
func paginate(r *http.Request, total int) (window, error) {
	offset, limit := 1, 500
	var err error

	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 1 {
			return window{}, fmt.Errorf("invalid offset %q", v)
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			return window{}, fmt.Errorf("invalid limit %q", v)
		}
	}

	start := offset - 1
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return window{start: start, end: end}, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
