// Package mockvision is an in-memory stand-in for the Vision profile API,
// used by cmd/mock for local runs and by integration tests.
package mockvision

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Operation names accepted by FailNext and Calls.
const (
	OpFingerprint   = "fingerprint"
	OpCreateProfile = "create_profile"
	OpGetProfile    = "get_profile"
	OpDeleteProfile = "delete_profile"
	OpImportCookies = "import_cookies"
	OpGetCookies    = "get_cookies"
)

type profile struct {
	ID      string          `json:"id"`
	Name    string          `json:"profile_name"`
	Notes   string          `json:"profile_notes"`
	ProxyID string          `json:"proxy_id,omitempty"`
	FP      json.RawMessage `json:"fingerprint,omitempty"`
	Cookies json.RawMessage `json:"-"`
}

type Server struct {
	token string

	mu       sync.Mutex
	folders  map[string]map[string]*profile
	calls    map[string]int
	failNext map[string]int
}

// New returns a server that requires the x-token header to equal token.
// An empty token disables the check.
func New(token string) *Server {
	return &Server{
		token:    token,
		folders:  map[string]map[string]*profile{},
		calls:    map[string]int{},
		failNext: map[string]int{},
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.auth)
	r.Get("/fingerprints/{os}/{version}", s.handleFingerprint)
	r.Post("/folders/{folder}/profiles", s.handleCreate)
	r.Get("/folders/{folder}/profiles/{id}", s.handleGet)
	r.Delete("/folders/{folder}/profiles/{id}", s.handleDelete)
	r.Post("/cookies/import/{folder}/{id}", s.handleImportCookies)
	r.Get("/cookies/{folder}/{id}", s.handleGetCookies)
	return r
}

// FailNext makes the next n calls of op answer 500.
func (s *Server) FailNext(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[op] += n
}

func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// SetCookies replaces the cookies stored for a profile, as if a browser
// session had changed them.
func (s *Server) SetCookies(folder, id string, cookies json.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.folders[folder][id]
	if p == nil {
		return false
	}
	p.Cookies = cookies
	return true
}

// ProfileCount reports how many profiles exist in folder.
func (s *Server) ProfileCount(folder string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.folders[folder])
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("x-token") != s.token {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// begin counts the call and reports whether it should fail.
func (s *Server) begin(op string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	if s.failNext[op] > 0 {
		s.failNext[op]--
		return true
	}
	return false
}

func (s *Server) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	if s.begin(OpFingerprint) {
		writeError(w, http.StatusInternalServerError, "injected failure")
		return
	}
	version := chi.URLParam(r, "version")
	major := strings.SplitN(version, ".", 2)[0]
	writeData(w, http.StatusOK, map[string]any{
		"fingerprint": map[string]any{
			"major": major,
			"os":    chi.URLParam(r, "os"),
			"navigator": map[string]any{
				"userAgent": fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36", version),
				"timezone":  "UTC",
				"language":  "en-US",
			},
			"webrtc_pref": "real",
		},
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if s.begin(OpCreateProfile) {
		writeError(w, http.StatusInternalServerError, "injected failure")
		return
	}
	var body struct {
		Name    string          `json:"profile_name"`
		Notes   string          `json:"profile_notes"`
		ProxyID string          `json:"proxy_id"`
		FP      json.RawMessage `json:"fingerprint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "profile_name is required")
		return
	}

	p := &profile{ID: uuid.NewString(), Name: body.Name, Notes: body.Notes, ProxyID: body.ProxyID, FP: body.FP}
	folder := chi.URLParam(r, "folder")
	s.mu.Lock()
	if s.folders[folder] == nil {
		s.folders[folder] = map[string]*profile{}
	}
	s.folders[folder][p.ID] = p
	s.mu.Unlock()
	writeData(w, http.StatusOK, p)
}

func (s *Server) lookup(r *http.Request) *profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folders[chi.URLParam(r, "folder")][chi.URLParam(r, "id")]
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.begin(OpGetProfile) {
		writeError(w, http.StatusInternalServerError, "injected failure")
		return
	}
	p := s.lookup(r)
	if p == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeData(w, http.StatusOK, p)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if s.begin(OpDeleteProfile) {
		writeError(w, http.StatusInternalServerError, "injected failure")
		return
	}
	folder, id := chi.URLParam(r, "folder"), chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.folders[folder][id]
	delete(s.folders[folder], id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id})
}

func (s *Server) handleImportCookies(w http.ResponseWriter, r *http.Request) {
	if s.begin(OpImportCookies) {
		writeError(w, http.StatusInternalServerError, "injected failure")
		return
	}
	var body struct {
		Cookies json.RawMessage `json:"cookies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.SetCookies(chi.URLParam(r, "folder"), chi.URLParam(r, "id"), body.Cookies) {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeData(w, http.StatusOK, map[string]any{"imported": true})
}

func (s *Server) handleGetCookies(w http.ResponseWriter, r *http.Request) {
	if s.begin(OpGetCookies) {
		writeError(w, http.StatusInternalServerError, "injected failure")
		return
	}
	p := s.lookup(r)
	if p == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	s.mu.Lock()
	cookies := p.Cookies
	s.mu.Unlock()
	if len(cookies) == 0 {
		cookies = json.RawMessage("[]")
	}
	writeData(w, http.StatusOK, cookies)
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
