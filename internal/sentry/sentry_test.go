package sentry

import (
	"context"
	"errors"
	"testing"

	"github.com/dagdev/vpnbill/internal/config"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestDisabledServiceIsNoop(t *testing.T) {
	svc := NewSentryService(config.GetDefaultConfig(), logger.NewNopLogger())
	ctx := context.Background()

	span, spanCtx := svc.StartSpan(ctx, "task.reconciliation", "tick", nil)
	assert.Nil(t, span)
	assert.Equal(t, ctx, spanCtx)

	svc.CaptureException(errors.New("boom"))
	svc.CaptureInvoiceFailure(ctx, errors.New("boom"))
	FinishSpan(span, nil)
}

func TestNilServiceIsNoop(t *testing.T) {
	var svc *Service
	assert.False(t, svc.enabled())
	svc.CaptureException(errors.New("boom"))
	svc.AddBreadcrumb("invoice", "retry", nil)
}
