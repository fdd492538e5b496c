package provisioning

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dagdev/vpnbill/internal/cache"
	"github.com/dagdev/vpnbill/internal/config"
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/httpclient"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/metrics"
	"github.com/hashicorp/go-retryablehttp"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Alerter receives operator-facing messages. Delivery is best effort.
type Alerter interface {
	Notify(ctx context.Context, text string)
}

// Result is a decoded panel response. Empty bodies decode to an empty Result.
type Result map[string]interface{}

// String returns the first non-empty string value among keys
func (r Result) String(keys ...string) string {
	for _, k := range keys {
		if v, ok := r[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Client talks to the VPN panel API. It owns the bearer token and a bounded
// per-call retry policy:
//   - 401 on the first attempt with a refreshable credential invalidates the token and retries once
//   - 404 fails immediately as KindRouteMissing
//   - 502/503/504 and transport failures are retried with exponential waits
//   - any other >=400 fails immediately as KindRejected
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	tokens  *tokenSource
	alerter Alerter
	logger  *logger.Logger
}

type callState struct {
	attempts int
}

type callStateKey struct{}

// NewClient creates a panel client. alerter may be nil.
func NewClient(cfg config.ProvisioningConfig, c cache.Cache, alerter Alerter, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	client := &Client{
		baseURL: baseURL,
		alerter: alerter,
		logger:  log,
	}

	rc := httpclient.NewRetryableClient(httpclient.ClientConfig{
		Timeout:       cfg.Timeout,
		MaxAttempts:   cfg.MaxAttempts,
		RetryWaitUnit: cfg.RetryWaitUnit,
	}, log)
	rc.CheckRetry = client.checkRetry
	rc.Backoff = client.backoff
	rc.PrepareRetry = client.authorize

	client.http = rc
	client.tokens = newTokenSource(baseURL, cfg.Credential, rc.HTTPClient, c)
	return client
}

// Request performs one logical panel call and decodes the JSON response
func (c *Client) Request(ctx context.Context, method, path string, body interface{}) (Result, error) {
	raw, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	out := Result{}
	decode(raw, &out)
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	start := time.Now()
	route := routeLabel(path)

	raw, status, err := c.send(ctx, method, path, body)
	outcome := strconv.Itoa(status)
	if kind := KindOf(err); kind != "" && status == 0 {
		outcome = string(kind)
	}
	metrics.ObserveProvisioning(method, route, outcome, time.Since(start))
	return raw, err
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) ([]byte, int, error) {
	log := c.logger.WithContext(ctx)

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, ierr.WithError(err).
				WithHintf("Unable to encode request for %s", path).
				Mark(ierr.ErrValidation)
		}
		payload = b
	}

	ctx = context.WithValue(ctx, callStateKey{}, &callState{})
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, 0, ierr.WithError(err).
			WithHint("Check the provisioning base URL").
			Mark(ierr.ErrValidation)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.authorize(req.Request); err != nil {
		return nil, 0, c.fail(ctx, method, path, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		log.Errorw("provisioning connection error",
			"method", method,
			"path", path,
			"error", err,
		)
		return nil, 0, c.fail(ctx, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &Error{Kind: KindUnavailable, Method: method, Path: path, StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		log.Errorw("provisioning auth error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
		)
		c.alert(ctx, fmt.Sprintf("Provisioning auth error (%d) on %s.", resp.StatusCode, path))
		return nil, resp.StatusCode, &Error{Kind: KindAuth, Method: method, Path: path, StatusCode: resp.StatusCode}

	case resp.StatusCode == http.StatusNotFound:
		log.Errorw("provisioning route not found",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		c.alert(ctx, fmt.Sprintf("Provisioning API route not found (%s).", path))
		return nil, resp.StatusCode, &Error{Kind: KindRouteMissing, Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}

	case isTransientStatus(resp.StatusCode):
		log.Errorw("provisioning backend unavailable",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
		)
		return nil, resp.StatusCode, &Error{Kind: KindUnavailable, Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}

	case resp.StatusCode >= 400:
		log.Errorw("provisioning request rejected",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return nil, resp.StatusCode, &Error{Kind: KindRejected, Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	log.Debugw("provisioning request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
	)
	if resp.StatusCode == http.StatusNoContent {
		return nil, resp.StatusCode, nil
	}
	return respBody, resp.StatusCode, nil
}

// fail converts transport-level errors into a provisioning error.
// Errors that already carry a kind (token exchange) pass through.
func (c *Client) fail(ctx context.Context, method, path string, err error) error {
	if perr, ok := err.(*Error); ok {
		if perr.Kind == KindAuth {
			c.alert(ctx, fmt.Sprintf("Provisioning auth error (%d) on %s.", perr.StatusCode, perr.Path))
		}
		return perr
	}
	return &Error{Kind: KindUnavailable, Method: method, Path: path, Err: err}
}

func (c *Client) alert(ctx context.Context, text string) {
	if c.alerter == nil {
		return
	}
	c.alerter.Notify(ctx, text)
}

// authorize sets the bearer header. It also runs before every retry so a
// refreshed token is picked up.
func (c *Client) authorize(req *http.Request) error {
	token, err := c.tokens.Token(req.Context())
	if err != nil {
		return err
	}
	if token == "" {
		req.Header.Del("Authorization")
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *Client) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	state, _ := ctx.Value(callStateKey{}).(*callState)
	attempt := 1
	if state != nil {
		state.attempts++
		attempt = state.attempts
	}

	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if attempt == 1 && c.tokens.refreshable() {
			c.tokens.Invalidate(ctx)
			return true, nil
		}
		return false, nil
	case isTransientStatus(resp.StatusCode):
		return true, nil
	}
	return false, nil
}

// backoff waits unit*2^n before retry n. A token refresh retries immediately.
func (c *Client) backoff(unit, ceiling time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusUnauthorized {
		return 0
	}
	wait := unit * time.Duration(1<<uint(attemptNum))
	if ceiling > 0 && wait > ceiling {
		wait = ceiling
	}
	return wait
}

func isTransientStatus(code int) bool {
	return code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// decode tolerates empty and non-JSON bodies, leaving out untouched
func decode(raw []byte, out interface{}) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, out)
}

// routeLabel keeps metric cardinality low by hiding usernames
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "user" {
		parts[2] = "{username}"
	}
	return "/" + strings.Join(parts, "/")
}
