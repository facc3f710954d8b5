// Package server is the HTTP rendition of the Presentation Adapter: it
// serves the current reservation view and feeds user intents back into
// the sync controller.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/applegrimm/reservesync/internal/audit"
	"github.com/applegrimm/reservesync/internal/config"
	"github.com/applegrimm/reservesync/internal/middleware"
	"github.com/applegrimm/reservesync/internal/remote"
	"github.com/applegrimm/reservesync/internal/service"
	"github.com/applegrimm/reservesync/internal/transport"
)

// Controller is the slice of the sync controller the HTTP surface needs.
type Controller interface {
	View(ctx context.Context, filter string) (service.ViewModel, error)
	Refresh(ctx context.Context) error
	ToggleCompletion(ctx context.Context, rowID int, completed bool, staff string) error
	SaveMemo(ctx context.Context, rowID int, text string) error
	Checkout(ctx context.Context, orderID string) (string, error)
	Invoice(ctx context.Context, orderID string) (string, error)
}

type Server struct {
	ctrl     Controller
	status   *Status
	pool     *audit.Pool
	user     string
	password string
	addr     string
}

func NewServer(ctrl Controller, status *Status, pool *audit.Pool, cfg *config.Config) *Server {
	return &Server{
		ctrl:     ctrl,
		status:   status,
		pool:     pool,
		user:     cfg.Username,
		password: cfg.Password,
		addr:     cfg.Addr(),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.BasicAuth(s.user, s.password))
	r.Use(middleware.RequestAudit(s.pool))

	r.Get("/status", s.handleStatus)
	r.Get("/reservations", s.handleList)
	r.Get("/stats", s.handleStats)
	r.Post("/refresh", s.handleRefresh)
	r.Post("/reservations/{rowID}/completion", s.handleCompletion)
	r.Post("/reservations/{rowID}/memo", s.handleMemo)
	r.Post("/orders/{orderID}/checkout", s.handleCheckout)
	r.Post("/orders/{orderID}/invoice", s.handleInvoice)
	return r
}

func (s *Server) Run() error {
	log.Printf("Server listen on %s...", s.addr)
	return http.ListenAndServe(s.addr, s.Routes())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = "all"
	}
	vm, err := s.ctrl.View(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	vm, err := s.ctrl.View(r.Context(), "all")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vm.Stats)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	rowID, ok := rowIDParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Completed bool   `json:"completed"`
		Staff     string `json:"staff"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	if err := s.ctrl.ToggleCompletion(r.Context(), rowID, req.Completed, req.Staff); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleMemo(w http.ResponseWriter, r *http.Request) {
	rowID, ok := rowIDParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Memo string `json:"memo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	if err := s.ctrl.SaveMemo(r.Context(), rowID, req.Memo); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	s.paymentLink(w, r, s.ctrl.Checkout)
}

func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	s.paymentLink(w, r, s.ctrl.Invoice)
}

func (s *Server) paymentLink(w http.ResponseWriter, r *http.Request, create func(context.Context, string) (string, error)) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		http.Error(w, "missing order ID", http.StatusBadRequest)
		return
	}
	link, err := create(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

func rowIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	rowID, err := strconv.Atoi(chi.URLParam(r, "rowID"))
	if err != nil {
		http.Error(w, "bad row ID", http.StatusBadRequest)
		return 0, false
	}
	return rowID, true
}

func writeError(w http.ResponseWriter, err error) {
	var (
		authErr *remote.AuthError
		trErr   *transport.Error
	)
	switch {
	case errors.Is(err, service.ErrStaffRequired), errors.Is(err, service.ErrUnknownOrder):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &authErr):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.As(err, &trErr) && trErr.Kind == transport.KindTimeout:
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
