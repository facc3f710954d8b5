// Package remote speaks the action protocol of the spreadsheet-backed
// reservation API on top of the callback transport.
package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/applegrimm/reservesync/internal/models"
)

// Views the reservation feed can be asked for. The upcoming view is the
// default; the past view adds a dateRange selector to the request.
const (
	ViewUpcoming = "today_onwards"
	ViewPast7    = "past_7days"
)

// Per-operation timeouts. Reads get 10s, optimistic writes are
// fire-and-forget at 5s, checkout session creation is the slow path.
const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 5 * time.Second
	checkoutTimeout = 20 * time.Second
)

var ErrEmptyResponse = errors.New("empty response envelope")

// APIError is a server-side refusal: the endpoint answered, with
// success=false and a message.
type APIError struct {
	Message string
}

func (e *APIError) Error() string { return "api error: " + e.Message }

// AuthError is the APIError subtype signaling an invalid tenant or an
// invalid short-lived credential. Credential distinguishes the two: a
// rejected credential is regenerated and retried once, a rejected tenant
// replaces the whole view.
type AuthError struct {
	Message    string
	Credential bool
}

func (e *AuthError) Error() string { return "auth error: " + e.Message }

// Sender is the one-exchange transport contract, satisfied by
// *transport.Client.
type Sender interface {
	Send(ctx context.Context, base string, params url.Values, timeout time.Duration) (json.RawMessage, error)
}

// Credentials attaches the current credential set to outgoing parameters,
// satisfied by *token.Manager. Nil means unauthenticated calls.
type Credentials interface {
	Attach(url.Values) error
}

// envelope is the response shape every action shares.
type envelope struct {
	Success    bool                 `json:"success"`
	Data       []models.Reservation `json:"data,omitempty"`
	StoreName  string               `json:"storeName,omitempty"`
	Error      string               `json:"error,omitempty"`
	URL        string               `json:"url,omitempty"`
	AdminToken string               `json:"adminToken,omitempty"`
	ExpiresIn  int64                `json:"expiresIn,omitempty"`
}

type Client struct {
	base   string
	sender Sender
	creds  Credentials
}

func NewClient(base string, sender Sender, creds Credentials) *Client {
	return &Client{base: base, sender: sender, creds: creds}
}

func (c *Client) call(ctx context.Context, params url.Values, timeout time.Duration) (*envelope, error) {
	if c.creds != nil {
		if err := c.creds.Attach(params); err != nil {
			return nil, fmt.Errorf("attach credentials: %w", err)
		}
	}
	raw, err := c.sender.Send(ctx, c.base, params, timeout)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Success {
		if env.Error == "" {
			return nil, ErrEmptyResponse
		}
		if cred, ok := authMessage(env.Error); ok {
			return nil, &AuthError{Message: env.Error, Credential: cred}
		}
		return nil, &APIError{Message: env.Error}
	}
	return &env, nil
}

// authMessage recognizes the access-denied and invalid-credential error
// strings the endpoint emits.
func authMessage(msg string) (credential, ok bool) {
	l := strings.ToLower(msg)
	switch {
	case strings.Contains(l, "invalid token"), strings.Contains(l, "token expired"):
		return true, true
	case strings.Contains(l, "access denied"), strings.Contains(l, "permission"), strings.Contains(l, "invalid shop"):
		return false, true
	}
	return false, false
}

// GetReservations fetches the reservation set for one tenant and view,
// returning the items and the store display name.
func (c *Client) GetReservations(ctx context.Context, tenant, view string) ([]models.Reservation, string, error) {
	params := url.Values{}
	params.Set("action", "getReservations")
	params.Set("shop", tenant)
	if view == ViewPast7 {
		params.Set("dateRange", "past_7days")
	}
	env, err := c.call(ctx, params, readTimeout)
	if err != nil {
		return nil, "", err
	}
	return env.Data, env.StoreName, nil
}

// UpdatePatch is the writable subset of a reservation line. Nil fields
// are left untouched by the server.
type UpdatePatch struct {
	Completed *bool
	Memo      *string
	Staff     *string
}

// UpdateReservation pushes one line mutation. The completion flag goes
// over the wire as '1'/'0'.
func (c *Client) UpdateReservation(ctx context.Context, tenant string, rowID int, patch UpdatePatch) error {
	params := url.Values{}
	params.Set("action", "updateReservation")
	params.Set("shop", tenant)
	params.Set("rowId", strconv.Itoa(rowID))
	if patch.Completed != nil {
		if *patch.Completed {
			params.Set("checked", "1")
		} else {
			params.Set("checked", "0")
		}
	}
	if patch.Memo != nil {
		params.Set("memo", *patch.Memo)
	}
	if patch.Staff != nil {
		params.Set("staffName", *patch.Staff)
	}
	_, err := c.call(ctx, params, writeTimeout)
	return err
}

// CheckoutRequest describes a payment collection to start for an order.
type CheckoutRequest struct {
	OrderID      string             `json:"orderId"`
	CustomerName string             `json:"customerName"`
	Email        string             `json:"email,omitempty"`
	Items        []CheckoutLineItem `json:"items"`
}

type CheckoutLineItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Amount   float64 `json:"amount"`
}

// CreateCheckoutSession asks the checkout provider glue for a payment
// URL the customer is redirected to.
func (c *Client) CreateCheckoutSession(ctx context.Context, tenant string, req CheckoutRequest) (string, error) {
	return c.sessionAction(ctx, "createCheckoutSession", tenant, req)
}

// CreateInvoice asks for an invoice payment URL instead of an immediate
// checkout.
func (c *Client) CreateInvoice(ctx context.Context, tenant string, req CheckoutRequest) (string, error) {
	return c.sessionAction(ctx, "createInvoice", tenant, req)
}

func (c *Client) sessionAction(ctx context.Context, action, tenant string, req CheckoutRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", action, err)
	}
	params := url.Values{}
	params.Set("action", action)
	params.Set("shop", tenant)
	params.Set("data", base64.URLEncoding.EncodeToString(data))
	env, err := c.call(ctx, params, checkoutTimeout)
	if err != nil {
		return "", err
	}
	if env.URL == "" {
		return "", &APIError{Message: action + " returned no url"}
	}
	return env.URL, nil
}

// IssueAdminToken bootstraps the short-lived admin credential for the
// tenant. ExpiresIn comes back in milliseconds.
func (c *Client) IssueAdminToken(ctx context.Context, tenant string) (string, time.Duration, error) {
	params := url.Values{}
	params.Set("action", "issueAdminToken")
	params.Set("shop", tenant)
	env, err := c.call(ctx, params, readTimeout)
	if err != nil {
		return "", 0, err
	}
	if env.AdminToken == "" {
		return "", 0, &APIError{Message: "issueAdminToken returned no token"}
	}
	return env.AdminToken, time.Duration(env.ExpiresIn) * time.Millisecond, nil
}
