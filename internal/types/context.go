package types

import (
	"context"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID ContextKey = "ctx_request_id"
	CtxInvoiceID ContextKey = "ctx_invoice_id"
	CtxPayerID   ContextKey = "ctx_payer_id"
	CtxSource    ContextKey = "ctx_source"

	HeaderRequestID     = "X-Request-ID"
	HeaderAdminKey      = "X-Admin-Key"
	HeaderWebhookSecret = "X-Webhook-Secret"
)

// Diagnostic sources recorded on provisioning calls.
const (
	SourceIntake    = "intake"
	SourceScheduler = "scheduler"
	SourceManual    = "manual"
	SourceAPI       = "api"
)

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

func GetInvoiceID(ctx context.Context) string {
	if invoiceID, ok := ctx.Value(CtxInvoiceID).(string); ok {
		return invoiceID
	}
	return ""
}

func GetPayerID(ctx context.Context) int64 {
	if payerID, ok := ctx.Value(CtxPayerID).(int64); ok {
		return payerID
	}
	return 0
}

func GetSource(ctx context.Context) string {
	if source, ok := ctx.Value(CtxSource).(string); ok {
		return source
	}
	return ""
}

// SetRequestID sets the request ID in the context
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}

// SetInvoiceID sets the invoice that triggered the work carried by ctx
func SetInvoiceID(ctx context.Context, invoiceID string) context.Context {
	return context.WithValue(ctx, CtxInvoiceID, invoiceID)
}

// SetPayerID sets the payer identity in the context
func SetPayerID(ctx context.Context, payerID int64) context.Context {
	return context.WithValue(ctx, CtxPayerID, payerID)
}

// SetSource records which component started the work carried by ctx
func SetSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, CtxSource, source)
}

// WithInvoice is a shorthand for attaching the invoice diagnostic context
// used by the intake, reconciliation and manual paths.
func WithInvoice(ctx context.Context, invoiceID string, payerID int64, source string) context.Context {
	ctx = SetInvoiceID(ctx, invoiceID)
	ctx = SetPayerID(ctx, payerID)
	return SetSource(ctx, source)
}

// DiagnosticFields returns the diagnostic context as zap-style key value pairs.
// The values never influence control flow.
func DiagnosticFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)
	if v := GetRequestID(ctx); v != "" {
		fields = append(fields, "request_id", v)
	}
	if v := GetInvoiceID(ctx); v != "" {
		fields = append(fields, "invoice_id", v)
	}
	if v := GetPayerID(ctx); v != 0 {
		fields = append(fields, "payer_id", v)
	}
	if v := GetSource(ctx); v != "" {
		fields = append(fields, "source", v)
	}
	return fields
}
