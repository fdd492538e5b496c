package provisioning

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const bytesPerGB = 1024 * 1024 * 1024

// AccessParams describes a new panel user
type AccessParams struct {
	Username string
	ExpireAt time.Time
	// TrafficGB of 0 leaves the user unlimited
	TrafficGB   float64
	ResetPeriod string
	Proxy       string
	Flow        string
	Inbounds    []string
}

// User is the subset of the panel user object the engine reads
type User struct {
	Username        string `json:"username"`
	Status          string `json:"status"`
	UsedTraffic     int64  `json:"used_traffic"`
	DataLimit       *int64 `json:"data_limit"`
	Expire          *int64 `json:"expire"`
	SubscriptionURL string `json:"subscription_url"`
}

// Status reports the access state and consumed traffic
type Status struct {
	Status    string
	UsedBytes int64
	ExpireAt  *time.Time
}

type createUserRequest struct {
	Username       string                            `json:"username"`
	Expire         int64                             `json:"expire"`
	DataLimit      int64                             `json:"data_limit,omitempty"`
	DataLimitReset string                            `json:"data_limit_reset,omitempty"`
	Proxies        map[string]map[string]interface{} `json:"proxies,omitempty"`
	Inbounds       map[string][]string               `json:"inbounds,omitempty"`
}

func userPath(username string, suffix ...string) string {
	p := "/api/user/" + url.PathEscape(username)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

func gbToBytes(gb float64) int64 {
	return int64(gb * bytesPerGB)
}

// CreateUser creates a panel user
func (c *Client) CreateUser(ctx context.Context, params AccessParams) (*User, error) {
	req := createUserRequest{
		Username: params.Username,
		Expire:   params.ExpireAt.Unix(),
	}
	if params.TrafficGB > 0 {
		req.DataLimit = gbToBytes(params.TrafficGB)
	}
	if params.ResetPeriod != "" {
		req.DataLimitReset = params.ResetPeriod
	}
	if params.Proxy != "" {
		settings := map[string]interface{}{}
		if params.Flow != "" {
			settings["flow"] = params.Flow
		}
		if len(settings) > 0 {
			req.Proxies = map[string]map[string]interface{}{params.Proxy: settings}
		}
		if len(params.Inbounds) > 0 {
			req.Inbounds = map[string][]string{params.Proxy: params.Inbounds}
		}
	}

	raw, err := c.do(ctx, http.MethodPost, "/api/user", req)
	if err != nil {
		return nil, err
	}
	user := &User{Username: params.Username}
	decode(raw, user)
	return user, nil
}

// RenewUser extends the user's expiry by days
func (c *Client) RenewUser(ctx context.Context, username string, days int) error {
	_, err := c.do(ctx, http.MethodPost, userPath(username, "renew"), map[string]int{"add_days": days})
	return err
}

// SetExpiry sets an absolute expiry
func (c *Client) SetExpiry(ctx context.Context, username string, expireAt time.Time) error {
	_, err := c.do(ctx, http.MethodPut, userPath(username), map[string]int64{"expire": expireAt.Unix()})
	return err
}

// SetTrafficPolicy updates the data limit and its reset period. A nil limit
// with an empty period is a no-op and makes no call.
func (c *Client) SetTrafficPolicy(ctx context.Context, username string, limitGB *float64, resetPeriod string) error {
	payload := map[string]interface{}{}
	if limitGB != nil {
		payload["data_limit"] = gbToBytes(*limitGB)
	}
	if resetPeriod != "" {
		payload["data_limit_reset"] = resetPeriod
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := c.do(ctx, http.MethodPut, userPath(username), payload)
	return err
}

// GetUser fetches the panel user
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	raw, err := c.do(ctx, http.MethodGet, userPath(username), nil)
	if err != nil {
		return nil, err
	}
	user := &User{Username: username}
	decode(raw, user)
	return user, nil
}

// GetStatus returns the access state and used traffic
func (c *Client) GetStatus(ctx context.Context, username string) (*Status, error) {
	user, err := c.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	status := &Status{
		Status:    user.Status,
		UsedBytes: user.UsedTraffic,
	}
	if user.Expire != nil && *user.Expire > 0 {
		t := time.Unix(*user.Expire, 0).UTC()
		status.ExpireAt = &t
	}
	return status, nil
}

// DeleteUser removes the panel user
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	_, err := c.do(ctx, http.MethodDelete, userPath(username), nil)
	return err
}

// GetSubscriptionLink returns the user's subscription URL
func (c *Client) GetSubscriptionLink(ctx context.Context, username string) (string, error) {
	res, err := c.Request(ctx, http.MethodGet, userPath(username, "subscription"), nil)
	if err != nil {
		return "", err
	}
	link := res.String("url", "subscription_url", "subscription_link")
	if link == "" {
		return "", &Error{
			Kind:   KindRejected,
			Method: http.MethodGet,
			Path:   userPath(username, "subscription"),
			Err:    fmt.Errorf("subscription link missing in response"),
		}
	}
	return link, nil
}
