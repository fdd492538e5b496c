package provisioning

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dagdev/vpnbill/internal/cache"
	ierr "github.com/dagdev/vpnbill/internal/errors"
)

const tokenPath = "/api/admin/token"

// tokenSource owns the bearer token. An opaque credential is used as-is.
// A username:password credential is exchanged once and the result kept in the
// cache until a 401 invalidates it. Concurrent invalidations are last-wins.
type tokenSource struct {
	baseURL    string
	credential string
	httpClient *http.Client
	cache      cache.Cache
	key        string
}

func newTokenSource(baseURL, credential string, httpClient *http.Client, c cache.Cache) *tokenSource {
	return &tokenSource{
		baseURL:    baseURL,
		credential: credential,
		httpClient: httpClient,
		cache:      c,
		key:        cache.GenerateKey(cache.PrefixProvisioningToken, baseURL),
	}
}

func (t *tokenSource) refreshable() bool {
	return strings.Contains(t.credential, ":")
}

// Token returns the bearer token to send, or "" when no credential is configured
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	if t.credential == "" {
		return "", nil
	}
	if !t.refreshable() {
		return t.credential, nil
	}
	if v, ok := t.cache.Get(ctx, t.key); ok {
		if token, ok := v.(string); ok && token != "" {
			return token, nil
		}
	}

	token, err := t.exchange(ctx)
	if err != nil {
		return "", err
	}
	t.cache.Set(ctx, t.key, token, cache.NoExpiration)
	return token, nil
}

// Invalidate drops the cached token so the next Token call exchanges again
func (t *tokenSource) Invalidate(ctx context.Context) {
	t.cache.Delete(ctx, t.key)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
}

func (t *tokenSource) exchange(ctx context.Context) (string, error) {
	username, password, _ := strings.Cut(t.credential, ":")
	form := url.Values{}
	form.Set("username", strings.TrimSpace(username))
	form.Set("password", strings.TrimSpace(password))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Check the provisioning base URL").
			Mark(ierr.ErrValidation)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Method: http.MethodPost, Path: tokenPath, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", &Error{Kind: KindAuth, Method: http.MethodPost, Path: tokenPath, StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return "", &Error{Kind: KindRouteMissing, Method: http.MethodPost, Path: tokenPath, StatusCode: resp.StatusCode}
	case isTransientStatus(resp.StatusCode):
		return "", &Error{Kind: KindUnavailable, Method: http.MethodPost, Path: tokenPath, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 400:
		return "", &Error{Kind: KindRejected, Method: http.MethodPost, Path: tokenPath, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &Error{Kind: KindRejected, Method: http.MethodPost, Path: tokenPath, StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}
	if tr.AccessToken != "" {
		return tr.AccessToken, nil
	}
	return tr.Token, nil
}
