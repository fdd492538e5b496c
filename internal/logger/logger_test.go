package logger

import (
	"context"
	"testing"

	"github.com/dagdev/vpnbill/internal/types"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsDiagnosticFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	ctx := types.WithInvoice(context.Background(), "inv_1", 42, types.SourceScheduler)
	l.WithContext(ctx).Infow("provisioning request", "path", "/api/user")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "inv_1", fields["invoice_id"])
		assert.Equal(t, int64(42), fields["payer_id"])
		assert.Equal(t, types.SourceScheduler, fields["source"])
		assert.Equal(t, "/api/user", fields["path"])
	}
}

func TestWithContextWithoutFieldsReturnsSameLogger(t *testing.T) {
	l := NewNopLogger()
	assert.Same(t, l, l.WithContext(context.Background()))
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, levelFor(types.LogLevelDebug))
	assert.Equal(t, zapcore.WarnLevel, levelFor(types.LogLevelWarn))
	assert.Equal(t, zapcore.InfoLevel, levelFor(""))
}
