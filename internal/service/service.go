// Package service orchestrates the reservation sync pipeline: load from
// cache or remote, refresh in the background, mutate optimistically with
// rollback-by-reload, and reclaim transport and cache resources
// periodically.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/applegrimm/reservesync/internal/audit"
	"github.com/applegrimm/reservesync/internal/cache"
	"github.com/applegrimm/reservesync/internal/fingerprint"
	"github.com/applegrimm/reservesync/internal/models"
	"github.com/applegrimm/reservesync/internal/remote"
	"github.com/applegrimm/reservesync/internal/store"
)

var (
	ErrNoTenant      = errors.New("tenant secret is missing")
	ErrStaffRequired = errors.New("handover staff name is required to complete an order")
	ErrUnknownOrder  = errors.New("order not found in current view")
)

// FilterPast7Days is the one presenter filter served from the historical
// view instead of the in-memory set.
const FilterPast7Days = "past7days"

// RemoteAPI is the remote action surface the controller drives,
// satisfied by *remote.Client.
type RemoteAPI interface {
	GetReservations(ctx context.Context, tenant, view string) ([]models.Reservation, string, error)
	UpdateReservation(ctx context.Context, tenant string, rowID int, patch remote.UpdatePatch) error
	CreateCheckoutSession(ctx context.Context, tenant string, req remote.CheckoutRequest) (string, error)
	CreateInvoice(ctx context.Context, tenant string, req remote.CheckoutRequest) (string, error)
	IssueAdminToken(ctx context.Context, tenant string) (string, time.Duration, error)
}

// Presenter receives the signals the dashboard renders from. Every
// failure path leaves the UI interactive: Loading(false) always follows
// Loading(true), errors never wedge a control.
type Presenter interface {
	Loading(active bool)
	DataChanged()
	Error(msg string)
	AuthDenied()
}

// CredentialStore manages the short-lived admin credential, satisfied by
// *token.Manager. Nil disables credential handling.
type CredentialStore interface {
	SetAdmin(tok string, ttl time.Duration)
	Invalidate()
	AdminValid() bool
}

// Reclaimable is the transport bookkeeping pruned by the periodic
// reclamation pass, satisfied by *transport.Client.
type Reclaimable interface {
	PruneStale(maxAge time.Duration) int
	PruneExcess(highWater, keep int) int
}

// Config carries the tuning knobs. Zero values fall back to defaults.
type Config struct {
	Stagger         time.Duration // pause between group-write pushes
	ReclaimInterval time.Duration
	StaleHandleAge  time.Duration
	HandleHighWater int
	HandleRetain    int
	CacheRetain     int
}

func (c *Config) fill() {
	if c.Stagger == 0 {
		c.Stagger = 200 * time.Millisecond
	}
	if c.ReclaimInterval == 0 {
		c.ReclaimInterval = 5 * time.Minute
	}
	if c.StaleHandleAge == 0 {
		c.StaleHandleAge = 30 * time.Second
	}
	if c.HandleHighWater == 0 {
		c.HandleHighWater = 10
	}
	if c.HandleRetain == 0 {
		c.HandleRetain = 5
	}
	if c.CacheRetain == 0 {
		c.CacheRetain = 5
	}
}

type Controller struct {
	tenant    string
	api       RemoteAPI
	snapshots *cache.Store
	state     *store.Store
	presenter Presenter
	creds     CredentialStore
	handles   Reclaimable
	auditPool *audit.Pool
	cfg       Config

	mu        sync.Mutex
	storeName string
}

type Option func(*Controller)

func WithCredentials(cs CredentialStore) Option { return func(c *Controller) { c.creds = cs } }
func WithReclaimable(r Reclaimable) Option      { return func(c *Controller) { c.handles = r } }
func WithAudit(p *audit.Pool) Option            { return func(c *Controller) { c.auditPool = p } }
func WithConfig(cfg Config) Option              { return func(c *Controller) { cfg.fill(); c.cfg = cfg } }

// New builds the controller for one tenant session. The tenant is
// resolved once at startup and never changes; without it no data can be
// fetched, so absence is fatal.
func New(tenant string, api RemoteAPI, snapshots *cache.Store, state *store.Store, presenter Presenter, opts ...Option) (*Controller, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrNoTenant
	}
	c := &Controller{
		tenant:    tenant,
		api:       api,
		snapshots: snapshots,
		state:     state,
		presenter: presenter,
	}
	if c.presenter == nil {
		c.presenter = nopPresenter{}
	}
	c.cfg.fill()
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Initialize performs the first load. A valid cached snapshot is shown
// immediately with a background refresh behind it; otherwise the load
// blocks behind a loading indicator.
func (c *Controller) Initialize(ctx context.Context) error {
	if data, ok := c.snapshots.Get(c.tenant, remote.ViewUpcoming); ok {
		c.state.ReplaceAll(data)
		c.presenter.DataChanged()
		go c.backgroundRefresh(ctx)
		return nil
	}

	c.presenter.Loading(true)
	defer c.presenter.Loading(false)
	if err := c.load(ctx); err != nil {
		c.surface(err)
		return err
	}
	return nil
}

// Refresh forces a foreground fetch, e.g. behind a reload button.
func (c *Controller) Refresh(ctx context.Context) error {
	c.presenter.Loading(true)
	defer c.presenter.Loading(false)
	if err := c.load(ctx); err != nil {
		c.surface(err)
		return err
	}
	return nil
}

// load fetches the upcoming view and, when the fingerprint moved,
// swaps the in-memory set, rewrites the cache and notifies the presenter.
func (c *Controller) load(ctx context.Context) error {
	var (
		data []models.Reservation
		name string
	)
	err := c.withCredential(ctx, func(ctx context.Context) error {
		var err error
		data, name, err = c.api.GetReservations(ctx, c.tenant, remote.ViewUpcoming)
		return err
	})
	if err != nil {
		return err
	}

	if name != "" {
		c.mu.Lock()
		c.storeName = name
		c.mu.Unlock()
	}

	if fingerprint.Sum(data) != c.state.Fingerprint() {
		c.state.ReplaceAll(data)
		c.snapshots.Put(c.tenant, remote.ViewUpcoming, data, c.state.Fingerprint())
		c.presenter.DataChanged()
	}
	return nil
}

func (c *Controller) backgroundRefresh(ctx context.Context) {
	if err := c.load(ctx); err != nil {
		// user already sees cached data, failure stays silent
		log.Printf("sync: background refresh failed: %v", err)
	}
}

// withCredential runs op with a valid admin credential attached and, on
// a credential rejection, regenerates the credential and retries exactly
// once. Tenant-level rejections pass through untouched.
func (c *Controller) withCredential(ctx context.Context, op func(context.Context) error) error {
	if c.creds == nil {
		return op(ctx)
	}
	if err := c.ensureCredential(ctx); err != nil {
		return err
	}
	err := op(ctx)
	var authErr *remote.AuthError
	if errors.As(err, &authErr) && authErr.Credential {
		c.creds.Invalidate()
		if err := c.ensureCredential(ctx); err != nil {
			return err
		}
		return op(ctx)
	}
	return err
}

func (c *Controller) ensureCredential(ctx context.Context) error {
	if c.creds.AdminValid() {
		return nil
	}
	tok, ttl, err := c.api.IssueAdminToken(ctx, c.tenant)
	if err != nil {
		return fmt.Errorf("issue admin token: %w", err)
	}
	c.creds.SetAdmin(tok, ttl)
	return nil
}

// surface routes a foreground failure to the presenter. A rejected
// tenant replaces the whole view, everything else is a dismissible
// banner.
func (c *Controller) surface(err error) {
	var authErr *remote.AuthError
	if errors.As(err, &authErr) && !authErr.Credential {
		c.presenter.AuthDenied()
		return
	}
	c.presenter.Error(err.Error())
}

// ToggleCompletion flips handover state for the whole order containing
// rowID. Completing requires a non-empty staff name, checked before any
// transport call. Each row is pushed independently with a small stagger;
// one reload follows once all writes have settled.
func (c *Controller) ToggleCompletion(ctx context.Context, rowID int, completed bool, staff string) error {
	staff = strings.TrimSpace(staff)
	if completed && staff == "" {
		return ErrStaffRequired
	}

	row, ok := c.state.FindByRowID(rowID)
	if !ok {
		// row belongs to a filtered-out or stale view
		log.Printf("sync: toggle for unknown row %d ignored", rowID)
		return nil
	}
	rows := c.state.RowsOfOrder(row.OrderID)

	if !completed {
		staff = ""
	}
	patch := store.Patch{Completed: &completed, Staff: &staff}
	for _, id := range rows {
		c.state.ApplyOptimistic(id, patch)
	}
	c.snapshots.Put(c.tenant, remote.ViewUpcoming, c.state.Snapshot(), c.state.Fingerprint())

	var failures error
fanout:
	for i, id := range rows {
		if i > 0 {
			select {
			case <-time.After(c.cfg.Stagger):
			case <-ctx.Done():
				failures = errors.Join(failures, ctx.Err())
				break fanout
			}
		}
		rp := remote.UpdatePatch{Completed: &completed, Staff: &staff}
		err := c.withCredential(ctx, func(ctx context.Context) error {
			return c.api.UpdateReservation(ctx, c.tenant, id, rp)
		})
		c.record("toggle_completion", row.OrderID, id, fmt.Sprintf("completed=%t staff=%q err=%v", completed, staff, err))
		if err != nil {
			failures = errors.Join(failures, fmt.Errorf("row %d: %w", id, err))
		}
	}

	if failures != nil {
		// roll back the optimistic patches by forcing a clean reload
		c.snapshots.Invalidate(c.tenant, remote.ViewUpcoming)
		if err := c.load(ctx); err != nil {
			log.Printf("sync: reload after failed group toggle: %v", err)
		}
		c.presenter.Error("some handover updates failed")
		return failures
	}

	if err := c.load(ctx); err != nil {
		// optimistic state already reflects the change
		log.Printf("sync: reload after group toggle: %v", err)
	}
	return nil
}

// SaveMemo attaches a staff note to one reservation line. The optimistic
// state is trusted on success; a failed push is rolled back by a forced
// reload.
func (c *Controller) SaveMemo(ctx context.Context, rowID int, text string) error {
	row, ok := c.state.FindByRowID(rowID)
	if !ok {
		log.Printf("sync: memo for unknown row %d ignored", rowID)
		return nil
	}

	c.state.ApplyOptimistic(rowID, store.Patch{Memo: &text})
	c.snapshots.Put(c.tenant, remote.ViewUpcoming, c.state.Snapshot(), c.state.Fingerprint())

	err := c.withCredential(ctx, func(ctx context.Context) error {
		return c.api.UpdateReservation(ctx, c.tenant, rowID, remote.UpdatePatch{Memo: &text})
	})
	c.record("save_memo", row.OrderID, rowID, fmt.Sprintf("err=%v", err))
	if err != nil {
		c.snapshots.Invalidate(c.tenant, remote.ViewUpcoming)
		if lerr := c.load(ctx); lerr != nil {
			log.Printf("sync: reload after failed memo save: %v", lerr)
		}
		c.presenter.Error("saving the memo failed")
		return err
	}
	return nil
}

// Checkout starts payment collection for an order and returns the
// provider redirect URL.
func (c *Controller) Checkout(ctx context.Context, orderID string) (string, error) {
	return c.payment(ctx, orderID, c.api.CreateCheckoutSession)
}

// Invoice requests an invoice payment link instead of an immediate
// checkout.
func (c *Controller) Invoice(ctx context.Context, orderID string) (string, error) {
	return c.payment(ctx, orderID, c.api.CreateInvoice)
}

func (c *Controller) payment(ctx context.Context, orderID string, create func(context.Context, string, remote.CheckoutRequest) (string, error)) (string, error) {
	req, err := c.checkoutRequest(orderID)
	if err != nil {
		return "", err
	}
	var link string
	err = c.withCredential(ctx, func(ctx context.Context) error {
		var err error
		link, err = create(ctx, c.tenant, req)
		return err
	})
	if err != nil {
		c.surface(err)
		return "", err
	}
	c.record("payment_link", orderID, 0, link)
	return link, nil
}

func (c *Controller) checkoutRequest(orderID string) (remote.CheckoutRequest, error) {
	for _, g := range models.GroupByOrder(c.state.Snapshot()) {
		if g.OrderID != orderID {
			continue
		}
		req := remote.CheckoutRequest{OrderID: g.OrderID, CustomerName: g.CustomerName}
		for _, it := range g.Items {
			req.Email = it.Email
			req.Items = append(req.Items, remote.CheckoutLineItem{
				Name:     it.ItemName,
				Quantity: it.Quantity,
				Amount:   it.Amount,
			})
		}
		return req, nil
	}
	return remote.CheckoutRequest{}, ErrUnknownOrder
}

// ViewModel is what the Presentation Adapter renders.
type ViewModel struct {
	StoreName    string              `json:"storeName,omitempty"`
	Filter       string              `json:"filter"`
	Groups       []models.OrderGroup `json:"groups"`
	Stats        models.Stats        `json:"stats"`
	TodayPending bool                `json:"todayPending"`
}

// View returns the current filtered reservation view. The past7days
// filter is served from its own cached historical view; everything else
// comes from the in-memory set.
func (c *Controller) View(ctx context.Context, filter string) (ViewModel, error) {
	today := models.Today(time.Now())

	if filter == FilterPast7Days {
		data, err := c.loadPastWeek(ctx)
		if err != nil {
			c.surface(err)
			return ViewModel{}, err
		}
		return ViewModel{
			StoreName:    c.StoreName(),
			Filter:       filter,
			Groups:       models.GroupByOrder(data),
			Stats:        models.Count(data),
			TodayPending: models.HasPendingToday(c.state.Snapshot(), today),
		}, nil
	}

	all := c.state.Snapshot()
	filtered := models.Filter(all, filter, today)
	return ViewModel{
		StoreName:    c.StoreName(),
		Filter:       filter,
		Groups:       models.GroupByOrder(filtered),
		Stats:        models.Count(filtered),
		TodayPending: models.HasPendingToday(all, today),
	}, nil
}

func (c *Controller) loadPastWeek(ctx context.Context) ([]models.Reservation, error) {
	if data, ok := c.snapshots.Get(c.tenant, remote.ViewPast7); ok {
		return data, nil
	}
	var data []models.Reservation
	err := c.withCredential(ctx, func(ctx context.Context) error {
		var err error
		data, _, err = c.api.GetReservations(ctx, c.tenant, remote.ViewPast7)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.snapshots.Put(c.tenant, remote.ViewPast7, data, "")
	return data, nil
}

func (c *Controller) StoreName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storeName
}

// StartReclamation prunes excess transport handles, stale callbacks and
// surplus cache entries on a fixed interval until ctx is cancelled. It
// never touches the reservation state itself.
func (c *Controller) StartReclamation(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.ReclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.reclaim()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) reclaim() {
	if c.handles != nil {
		if n := c.handles.PruneStale(c.cfg.StaleHandleAge); n > 0 {
			log.Printf("sync: reclaimed %d stale transport handles", n)
		}
		if n := c.handles.PruneExcess(c.cfg.HandleHighWater, c.cfg.HandleRetain); n > 0 {
			log.Printf("sync: reclaimed %d excess transport handles", n)
		}
	}
	if n := c.snapshots.Prune(c.cfg.CacheRetain); n > 0 {
		log.Printf("sync: pruned %d cache entries", n)
	}
}

func (c *Controller) record(action, orderID string, rowID int, detail string) {
	if c.auditPool == nil {
		return
	}
	c.auditPool.Log(audit.Event{
		Timestamp: time.Now().UTC(),
		Tenant:    c.tenant,
		OrderID:   orderID,
		RowID:     rowID,
		Action:    action,
		Detail:    detail,
	})
}

type nopPresenter struct{}

func (nopPresenter) Loading(bool) {}
func (nopPresenter) DataChanged() {}
func (nopPresenter) Error(string) {}
func (nopPresenter) AuthDenied()  {}
