package testutil

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dagdev/vpnbill/internal/provisioning"
)

// FakeProvisioner is a scripted in-memory panel
type FakeProvisioner struct {
	mu       sync.Mutex
	users    map[string]*provisioning.User
	failures []error
	// linkFailures are consumed by GetSubscriptionLink only
	linkFailures []error
	calls        map[string]int

	// OmitURLOnCreate makes CreateUser return no subscription_url so callers
	// must fetch the link separately.
	OmitURLOnCreate bool
}

func NewFakeProvisioner() *FakeProvisioner {
	return &FakeProvisioner{
		users: make(map[string]*provisioning.User),
		calls: make(map[string]int),
	}
}

// FailNext makes the next n grant attempts (CreateUser or RenewUser) fail with err
func (f *FakeProvisioner) FailNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.failures = append(f.failures, err)
	}
}

// FailLinkNext makes the next n GetSubscriptionLink calls fail with err
func (f *FakeProvisioner) FailLinkNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.linkFailures = append(f.linkFailures, err)
	}
}

// Calls returns how many times the named method was called
func (f *FakeProvisioner) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// User returns a copy of the panel user, or nil
func (f *FakeProvisioner) User(username string) *provisioning.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return nil
	}
	c := *u
	return &c
}

// Unavailable builds the error a panel outage surfaces as
func Unavailable(path string) error {
	return &provisioning.Error{Kind: provisioning.KindUnavailable, Method: http.MethodPost, Path: path, StatusCode: http.StatusServiceUnavailable}
}

func (f *FakeProvisioner) record(method string) error {
	f.calls[method]++
	if method != "CreateUser" && method != "RenewUser" {
		return nil
	}
	if len(f.failures) == 0 {
		return nil
	}
	err := f.failures[0]
	f.failures = f.failures[1:]
	return err
}

func subscriptionURL(username string) string {
	return "https://panel.example/sub/" + username
}

func (f *FakeProvisioner) missing(method, username string) error {
	return &provisioning.Error{Kind: provisioning.KindRejected, Method: method, Path: "/api/user/" + username, StatusCode: http.StatusNotFound}
}

func (f *FakeProvisioner) CreateUser(ctx context.Context, params provisioning.AccessParams) (*provisioning.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateUser"); err != nil {
		return nil, err
	}
	if _, exists := f.users[params.Username]; exists {
		return nil, &provisioning.Error{
			Kind:       provisioning.KindRejected,
			Method:     http.MethodPost,
			Path:       "/api/user",
			StatusCode: http.StatusConflict,
			Body:       `{"detail":"User already exists"}`,
		}
	}

	expire := params.ExpireAt.Unix()
	user := &provisioning.User{
		Username:        params.Username,
		Status:          "active",
		Expire:          &expire,
		SubscriptionURL: subscriptionURL(params.Username),
	}
	if params.TrafficGB > 0 {
		limit := int64(params.TrafficGB * 1024 * 1024 * 1024)
		user.DataLimit = &limit
	}
	f.users[params.Username] = user

	out := *user
	if f.OmitURLOnCreate {
		out.SubscriptionURL = ""
	}
	return &out, nil
}

func (f *FakeProvisioner) RenewUser(ctx context.Context, username string, days int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RenewUser"); err != nil {
		return err
	}
	u, ok := f.users[username]
	if !ok {
		return f.missing(http.MethodPost, username)
	}
	base := time.Now().UTC()
	if u.Expire != nil && time.Unix(*u.Expire, 0).After(base) {
		base = time.Unix(*u.Expire, 0)
	}
	expire := base.AddDate(0, 0, days).Unix()
	u.Expire = &expire
	return nil
}

func (f *FakeProvisioner) SetExpiry(ctx context.Context, username string, expireAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetExpiry")
	u, ok := f.users[username]
	if !ok {
		return f.missing(http.MethodPut, username)
	}
	expire := expireAt.Unix()
	u.Expire = &expire
	return nil
}

func (f *FakeProvisioner) SetTrafficPolicy(ctx context.Context, username string, limitGB *float64, resetPeriod string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetTrafficPolicy")
	u, ok := f.users[username]
	if !ok {
		return f.missing(http.MethodPut, username)
	}
	if limitGB != nil {
		limit := int64(*limitGB * 1024 * 1024 * 1024)
		u.DataLimit = &limit
	}
	return nil
}

func (f *FakeProvisioner) GetStatus(ctx context.Context, username string) (*provisioning.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetStatus")
	u, ok := f.users[username]
	if !ok {
		return nil, f.missing(http.MethodGet, username)
	}
	st := &provisioning.Status{Status: u.Status, UsedBytes: u.UsedTraffic}
	if u.Expire != nil {
		t := time.Unix(*u.Expire, 0).UTC()
		st.ExpireAt = &t
	}
	return st, nil
}

func (f *FakeProvisioner) DeleteUser(ctx context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteUser")
	if _, ok := f.users[username]; !ok {
		return f.missing(http.MethodDelete, username)
	}
	delete(f.users, username)
	return nil
}

func (f *FakeProvisioner) GetSubscriptionLink(ctx context.Context, username string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetSubscriptionLink")
	if len(f.linkFailures) > 0 {
		err := f.linkFailures[0]
		f.linkFailures = f.linkFailures[1:]
		return "", err
	}
	if _, ok := f.users[username]; !ok {
		return "", f.missing(http.MethodGet, username)
	}
	return subscriptionURL(username), nil
}
