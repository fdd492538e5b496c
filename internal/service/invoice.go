package service

import (
	"context"

	"github.com/dagdev/vpnbill/internal/api/dto"
	"github.com/dagdev/vpnbill/internal/types"
)

// InvoiceService exposes read access to invoices for privileged callers
type InvoiceService interface {
	GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter *types.InvoiceFilter) (*dto.ListInvoicesResponse, error)
	ListPendingIDs(ctx context.Context) (*dto.PendingInvoicesResponse, error)
	WasProcessed(ctx context.Context, id string) (bool, error)
}

type invoiceService struct {
	ServiceParams
}

func NewInvoiceService(params ServiceParams) InvoiceService {
	return &invoiceService{
		ServiceParams: params,
	}
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter *types.InvoiceFilter) (*dto.ListInvoicesResponse, error) {
	if filter == nil {
		filter = &types.InvoiceFilter{}
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	invoices, err := s.InvoiceRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return dto.NewListInvoicesResponse(invoices), nil
}

func (s *invoiceService) ListPendingIDs(ctx context.Context) (*dto.PendingInvoicesResponse, error) {
	ids, err := s.InvoiceRepo.ListPendingIDs(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return &dto.PendingInvoicesResponse{InvoiceIDs: ids}, nil
}

func (s *invoiceService) WasProcessed(ctx context.Context, id string) (bool, error) {
	return s.InvoiceRepo.WasProcessed(ctx, id)
}
