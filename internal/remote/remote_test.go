package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/applegrimm/reservesync/internal/remote"
)

type fakeSender struct {
	lastParams  url.Values
	lastTimeout time.Duration
	response    string
	err         error
}

func (f *fakeSender) Send(_ context.Context, _ string, params url.Values, timeout time.Duration) (json.RawMessage, error) {
	f.lastParams = params
	f.lastTimeout = timeout
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.response), nil
}

type fakeCreds struct{ attached int }

func (f *fakeCreds) Attach(v url.Values) error {
	f.attached++
	v.Set("token", "signed-token")
	return nil
}

func TestGetReservations(t *testing.T) {
	fs := &fakeSender{response: `{"success":true,"storeName":"Sakura Deli","data":[{"rowId":1,"orderId":"A"},{"rowId":2,"orderId":"A"}]}`}
	creds := &fakeCreds{}
	c := remote.NewClient("https://example.test/exec", fs, creds)

	data, name, err := c.GetReservations(context.Background(), "shop42", remote.ViewUpcoming)
	assert.NoError(t, err)
	assert.Equal(t, "Sakura Deli", name)
	assert.Len(t, data, 2)

	assert.Equal(t, "getReservations", fs.lastParams.Get("action"))
	assert.Equal(t, "shop42", fs.lastParams.Get("shop"))
	assert.Empty(t, fs.lastParams.Get("dateRange"))
	assert.Equal(t, "signed-token", fs.lastParams.Get("token"))
	assert.Equal(t, 1, creds.attached, "every call carries a credential")
	assert.Equal(t, 10*time.Second, fs.lastTimeout)
}

func TestGetReservationsPastWeek(t *testing.T) {
	fs := &fakeSender{response: `{"success":true,"data":[]}`}
	c := remote.NewClient("base", fs, nil)

	_, _, err := c.GetReservations(context.Background(), "shop42", remote.ViewPast7)
	assert.NoError(t, err)
	assert.Equal(t, "past_7days", fs.lastParams.Get("dateRange"))
}

func TestUpdateReservationParams(t *testing.T) {
	fs := &fakeSender{response: `{"success":true}`}
	c := remote.NewClient("base", fs, nil)

	completed := true
	memo := "bring change"
	staff := "Rin"
	err := c.UpdateReservation(context.Background(), "shop42", 7, remote.UpdatePatch{
		Completed: &completed, Memo: &memo, Staff: &staff,
	})
	assert.NoError(t, err)
	assert.Equal(t, "updateReservation", fs.lastParams.Get("action"))
	assert.Equal(t, "7", fs.lastParams.Get("rowId"))
	assert.Equal(t, "1", fs.lastParams.Get("checked"))
	assert.Equal(t, "bring change", fs.lastParams.Get("memo"))
	assert.Equal(t, "Rin", fs.lastParams.Get("staffName"))
	assert.Equal(t, 5*time.Second, fs.lastTimeout)
}

func TestUpdateReservationUnchecked(t *testing.T) {
	fs := &fakeSender{response: `{"success":true}`}
	c := remote.NewClient("base", fs, nil)

	completed := false
	err := c.UpdateReservation(context.Background(), "shop42", 7, remote.UpdatePatch{Completed: &completed})
	assert.NoError(t, err)
	assert.Equal(t, "0", fs.lastParams.Get("checked"))
	assert.False(t, fs.lastParams.Has("memo"), "nil fields stay off the wire")
	assert.False(t, fs.lastParams.Has("staffName"))
}

func TestAPIError(t *testing.T) {
	fs := &fakeSender{response: `{"success":false,"error":"row already deleted"}`}
	c := remote.NewClient("base", fs, nil)

	_, _, err := c.GetReservations(context.Background(), "shop42", remote.ViewUpcoming)
	var apiErr *remote.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "row already deleted", apiErr.Message)
}

func TestAuthErrorTenant(t *testing.T) {
	fs := &fakeSender{response: `{"success":false,"error":"access denied for this shop"}`}
	c := remote.NewClient("base", fs, nil)

	_, _, err := c.GetReservations(context.Background(), "shop42", remote.ViewUpcoming)
	var authErr *remote.AuthError
	assert.True(t, errors.As(err, &authErr))
	assert.False(t, authErr.Credential)
}

func TestAuthErrorCredential(t *testing.T) {
	fs := &fakeSender{response: `{"success":false,"error":"invalid token"}`}
	c := remote.NewClient("base", fs, nil)

	err := c.UpdateReservation(context.Background(), "shop42", 1, remote.UpdatePatch{})
	var authErr *remote.AuthError
	assert.True(t, errors.As(err, &authErr))
	assert.True(t, authErr.Credential)
}

func TestCreateCheckoutSession(t *testing.T) {
	fs := &fakeSender{response: `{"success":true,"url":"https://pay.example/cs_123"}`}
	c := remote.NewClient("base", fs, nil)

	link, err := c.CreateCheckoutSession(context.Background(), "shop42", remote.CheckoutRequest{
		OrderID: "A", CustomerName: "Sato",
		Items: []remote.CheckoutLineItem{{Name: "Bento", Quantity: 2, Amount: 1200}},
	})
	assert.NoError(t, err)
	assert.Equal(t, "https://pay.example/cs_123", link)
	assert.Equal(t, "createCheckoutSession", fs.lastParams.Get("action"))
	assert.NotEmpty(t, fs.lastParams.Get("data"))
	assert.Equal(t, 20*time.Second, fs.lastTimeout)
}

func TestCreateCheckoutSessionNoURL(t *testing.T) {
	fs := &fakeSender{response: `{"success":true}`}
	c := remote.NewClient("base", fs, nil)

	_, err := c.CreateCheckoutSession(context.Background(), "shop42", remote.CheckoutRequest{OrderID: "A"})
	var apiErr *remote.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestIssueAdminToken(t *testing.T) {
	fs := &fakeSender{response: `{"success":true,"adminToken":"adm-1","expiresIn":60000}`}
	c := remote.NewClient("base", fs, nil)

	tok, ttl, err := c.IssueAdminToken(context.Background(), "shop42")
	assert.NoError(t, err)
	assert.Equal(t, "adm-1", tok)
	assert.Equal(t, time.Minute, ttl)
	assert.Equal(t, "issueAdminToken", fs.lastParams.Get("action"))
}

func TestTransportErrorPassesThrough(t *testing.T) {
	sentinel := errors.New("wire died")
	fs := &fakeSender{err: sentinel}
	c := remote.NewClient("base", fs, nil)

	_, _, err := c.GetReservations(context.Background(), "shop42", remote.ViewUpcoming)
	assert.ErrorIs(t, err, sentinel)
}
