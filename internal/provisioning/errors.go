package provisioning

import (
	"errors"
	"fmt"

	ierr "github.com/dagdev/vpnbill/internal/errors"
)

// Kind classifies a failed panel call
type Kind string

const (
	// KindAuth is a 401 that a token refresh did not cure
	KindAuth Kind = "auth"
	// KindRouteMissing is a 404; the panel does not expose the route
	KindRouteMissing Kind = "route_missing"
	// KindUnavailable is a 502/503/504 or a transport failure after the attempt budget ran out
	KindUnavailable Kind = "unavailable"
	// KindRejected is any other >=400 response
	KindRejected Kind = "rejected"
)

// Error is returned by every failed Client call
type Error struct {
	Kind       Kind
	Method     string
	Path       string
	StatusCode int
	// Body is the raw response body, kept for diagnostics
	Body string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode > 0 && e.Body != "":
		return fmt.Sprintf("provisioning %s: %s %s: status=%d body=%s", e.Kind, e.Method, e.Path, e.StatusCode, e.Body)
	case e.StatusCode > 0:
		return fmt.Sprintf("provisioning %s: %s %s: status=%d", e.Kind, e.Method, e.Path, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("provisioning %s: %s %s: %v", e.Kind, e.Method, e.Path, e.Err)
	default:
		return fmt.Sprintf("provisioning %s: %s %s", e.Kind, e.Method, e.Path)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the generic provisioning sentinel and the sentinel of the error's kind
func (e *Error) Is(target error) bool {
	if target == ierr.ErrProvisioning {
		return true
	}
	return target == sentinelFor(e.Kind)
}

func sentinelFor(kind Kind) error {
	switch kind {
	case KindAuth:
		return ierr.ErrProvisioningAuth
	case KindRouteMissing:
		return ierr.ErrProvisioningRouteMissing
	case KindUnavailable:
		return ierr.ErrProvisioningUnavailable
	case KindRejected:
		return ierr.ErrProvisioningRejected
	}
	return ierr.ErrProvisioning
}

// KindOf returns the kind of a provisioning error, or "" for anything else
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

func IsAuth(err error) bool         { return KindOf(err) == KindAuth }
func IsRouteMissing(err error) bool { return KindOf(err) == KindRouteMissing }
func IsUnavailable(err error) bool  { return KindOf(err) == KindUnavailable }
func IsRejected(err error) bool     { return KindOf(err) == KindRejected }
