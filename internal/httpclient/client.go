package httpclient

import (
	"net/http"
	"time"

	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/hashicorp/go-retryablehttp"
)

// ClientConfig holds configuration for the HTTP client
type ClientConfig struct {
	Timeout time.Duration
	// MaxAttempts is the total number of attempts per call, first try included
	MaxAttempts int
	// RetryWaitUnit is the base unit for exponential waits between attempts
	RetryWaitUnit time.Duration
}

// NewRetryableClient builds a retryablehttp client whose policy hooks are left to the caller.
// The defaults are conservative: no retries until CheckRetry says so, and failures are passed
// through so the caller can classify the final response itself.
func NewRetryableClient(cfg ClientConfig, log *logger.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
	}
	client.RetryMax = max(cfg.MaxAttempts-1, 0)
	client.RetryWaitMin = cfg.RetryWaitUnit
	client.RetryWaitMax = cfg.RetryWaitUnit * time.Duration(1<<uint(max(cfg.MaxAttempts, 1)))
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if log != nil {
		client.Logger = log.GetRetryableLogger()
	} else {
		client.Logger = nil
	}
	return client
}
