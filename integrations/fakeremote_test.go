package integrations

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"

	"github.com/applegrimm/reservesync/internal/models"
	"github.com/applegrimm/reservesync/internal/remote"
)

// fakeRemote is an in-memory stand-in for the spreadsheet-backed endpoint.
// It speaks the same callback-wrapped envelope protocol the real one does.
type fakeRemote struct {
	mu        sync.Mutex
	rows      []models.Reservation
	storeName string
	failNext  string // error message returned by the next call, once
	requests  []url.Values

	server *httptest.Server
}

func newFakeRemote() *fakeRemote {
	f := &fakeRemote{storeName: "Sakura Deli"}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeRemote) Close() { f.server.Close() }

func (f *fakeRemote) URL() string { return f.server.URL }

func (f *fakeRemote) setRows(rows []models.Reservation) {
	f.mu.Lock()
	f.rows = append([]models.Reservation(nil), rows...)
	f.mu.Unlock()
}

func (f *fakeRemote) row(rowID int) (models.Reservation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.RowID == rowID {
			return r, true
		}
	}
	return models.Reservation{}, false
}

func (f *fakeRemote) lastRequest(action string) (url.Values, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Get("action") == action {
			return f.requests[i], true
		}
	}
	return nil, false
}

type wireEnvelope struct {
	Success    bool                 `json:"success"`
	Data       []models.Reservation `json:"data,omitempty"`
	StoreName  string               `json:"storeName,omitempty"`
	Error      string               `json:"error,omitempty"`
	URL        string               `json:"url,omitempty"`
	AdminToken string               `json:"adminToken,omitempty"`
	ExpiresIn  int64                `json:"expiresIn,omitempty"`
}

func (f *fakeRemote) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	callback := q.Get("callback")

	f.mu.Lock()
	f.requests = append(f.requests, q)
	failure := f.failNext
	f.failNext = ""
	f.mu.Unlock()

	if failure != "" {
		f.respond(w, callback, wireEnvelope{Error: failure})
		return
	}
	if q.Get("token") == "" {
		f.respond(w, callback, wireEnvelope{Error: "invalid token"})
		return
	}

	switch q.Get("action") {
	case "getReservations":
		f.mu.Lock()
		data := append([]models.Reservation(nil), f.rows...)
		name := f.storeName
		f.mu.Unlock()
		f.respond(w, callback, wireEnvelope{Success: true, Data: data, StoreName: name})

	case "updateReservation":
		var rowID int
		fmt.Sscanf(q.Get("rowId"), "%d", &rowID)
		f.mu.Lock()
		found := false
		for i := range f.rows {
			if f.rows[i].RowID != rowID {
				continue
			}
			found = true
			if c := q.Get("checked"); c != "" {
				f.rows[i].IsCompleted = c == "1"
			}
			if q.Has("memo") {
				f.rows[i].Memo = q.Get("memo")
			}
			if q.Has("staffName") {
				f.rows[i].HandoverStaff = q.Get("staffName")
			}
		}
		f.mu.Unlock()
		if !found {
			f.respond(w, callback, wireEnvelope{Error: "row not found"})
			return
		}
		f.respond(w, callback, wireEnvelope{Success: true})

	case "createCheckoutSession", "createInvoice":
		var req remote.CheckoutRequest
		raw, err := base64.URLEncoding.DecodeString(q.Get("data"))
		if err == nil {
			err = json.Unmarshal(raw, &req)
		}
		if err != nil || req.OrderID == "" {
			f.respond(w, callback, wireEnvelope{Error: "bad checkout payload"})
			return
		}
		f.respond(w, callback, wireEnvelope{Success: true, URL: "https://pay.example/" + req.OrderID})

	case "issueAdminToken":
		f.respond(w, callback, wireEnvelope{Success: true, AdminToken: "adm-integration", ExpiresIn: 60_000})

	default:
		f.respond(w, callback, wireEnvelope{Error: "unknown action"})
	}
}

func (f *fakeRemote) respond(w http.ResponseWriter, callback string, env wireEnvelope) {
	body, _ := json.Marshal(env)
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	fmt.Fprintf(w, "%s(%s);", callback, body)
}
