// Package transport performs one logical exchange with the remote sheet
// API. The endpoint only answers by invoking a named callback around the
// JSON payload (script-injection style), so every call registers a unique
// callback name, sends it as a query parameter, and unwraps the
// `name({...})` body it gets back.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindTimeout ErrorKind = "timeout"
	KindParse   ErrorKind = "parse"
)

// Error is the transport-level failure taxonomy. Kind distinguishes a
// dead endpoint from a slow one from a mangled payload.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// handle tracks one in-flight request. release runs exactly once no
// matter which of success, network failure or timeout finishes first.
type handle struct {
	name    string
	created time.Time
	cancel  context.CancelFunc
	once    sync.Once
}

type Client struct {
	httpc *http.Client

	mu      sync.Mutex
	pending map[string]*handle
	seq     atomic.Int64
}

func NewClient() *Client {
	return &Client{
		httpc:   &http.Client{},
		pending: make(map[string]*handle),
	}
}

// Send issues one exchange against base with the given action parameters
// and per-call timeout, and returns the JSON payload the endpoint passed
// to the callback. The callback name and cache-busting timestamp are
// attached here; params must not already contain them.
func (c *Client) Send(ctx context.Context, base string, params url.Values, timeout time.Duration) (json.RawMessage, error) {
	name := fmt.Sprintf("cb%d_%d", time.Now().UnixMilli(), c.seq.Add(1))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	h := &handle{name: name, created: time.Now(), cancel: cancel}

	c.mu.Lock()
	c.pending[name] = h
	c.mu.Unlock()
	defer c.release(h)

	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("callback", name)
	q.Set("_t", strconv.FormatInt(time.Now().UnixMilli(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, Err: err}
		}
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindNetwork, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, Err: err}
		}
		return nil, &Error{Kind: KindNetwork, Err: err}
	}

	payload, err := unwrap(name, body)
	if err != nil {
		return nil, &Error{Kind: KindParse, Err: err}
	}
	return payload, nil
}

// unwrap strips the `name(...)` wrapper and validates the inner JSON.
func unwrap(name string, body []byte) (json.RawMessage, error) {
	s := strings.TrimSpace(string(body))
	s = strings.TrimSuffix(s, ";")
	if !strings.HasPrefix(s, name+"(") || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("body is not a %s(...) envelope", name)
	}
	inner := s[len(name)+1 : len(s)-1]
	if !json.Valid([]byte(inner)) {
		return nil, errors.New("callback payload is not valid JSON")
	}
	return json.RawMessage(inner), nil
}

func (c *Client) release(h *handle) {
	h.once.Do(func() {
		h.cancel()
		c.mu.Lock()
		delete(c.pending, h.name)
		c.mu.Unlock()
	})
}

// Outstanding reports the number of in-flight request handles.
func (c *Client) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// PruneStale releases every handle older than maxAge. Covers callers
// that issued requests and abandoned them.
func (c *Client) PruneStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	c.mu.Lock()
	var stale []*handle
	for _, h := range c.pending {
		if h.created.Before(cutoff) {
			stale = append(stale, h)
		}
	}
	c.mu.Unlock()

	for _, h := range stale {
		c.release(h)
	}
	return len(stale)
}

// PruneExcess bounds memory when more than highWater handles are
// outstanding: the oldest are released until only keep remain.
func (c *Client) PruneExcess(highWater, keep int) int {
	c.mu.Lock()
	if len(c.pending) <= highWater {
		c.mu.Unlock()
		return 0
	}
	all := make([]*handle, 0, len(c.pending))
	for _, h := range c.pending {
		all = append(all, h)
	}
	c.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].created.Before(all[j].created) })
	victims := all[:len(all)-keep]
	for _, h := range victims {
		c.release(h)
	}
	return len(victims)
}
