package server

import "sync"

// Status is the presenter implementation for the HTTP surface: instead
// of touching DOM elements it accumulates the busy/error signals the
// dashboard polls via GET /status.
type Status struct {
	mu         sync.Mutex
	loading    bool
	lastError  string
	authDenied bool
	version    int
}

func NewStatus() *Status {
	return &Status{}
}

func (s *Status) Loading(active bool) {
	s.mu.Lock()
	s.loading = active
	s.mu.Unlock()
}

// DataChanged bumps the view version so pollers know to re-render.
func (s *Status) DataChanged() {
	s.mu.Lock()
	s.version++
	s.mu.Unlock()
}

func (s *Status) Error(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

func (s *Status) AuthDenied() {
	s.mu.Lock()
	s.authDenied = true
	s.mu.Unlock()
}

// ClearError dismisses the banner.
func (s *Status) ClearError() {
	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()
}

type StatusView struct {
	Loading    bool   `json:"loading"`
	LastError  string `json:"lastError,omitempty"`
	AuthDenied bool   `json:"authDenied"`
	Version    int    `json:"version"`
}

func (s *Status) Snapshot() StatusView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusView{
		Loading:    s.loading,
		LastError:  s.lastError,
		AuthDenied: s.authDenied,
		Version:    s.version,
	}
}
