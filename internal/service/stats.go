package service

import (
	"context"
	"time"

	"github.com/dagdev/vpnbill/internal/api/dto"
	"github.com/dagdev/vpnbill/internal/cache"
)

const statsCacheTTL = 30 * time.Second

// StatsService aggregates confirmed payments for operators
type StatsService interface {
	GetStats(ctx context.Context) (*dto.StatsResponse, error)
}

type statsService struct {
	ServiceParams
}

func NewStatsService(params ServiceParams) StatsService {
	return &statsService{
		ServiceParams: params,
	}
}

func (s *statsService) GetStats(ctx context.Context) (*dto.StatsResponse, error) {
	key := cache.GenerateKey(cache.PrefixStats, "invoices")
	if s.Cache != nil {
		if cached, ok := s.Cache.Get(ctx, key); ok {
			if resp, ok := cached.(*dto.StatsResponse); ok {
				return resp, nil
			}
		}
	}

	stats, err := s.InvoiceRepo.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	resp := dto.NewStatsResponse(stats, s.Config.Payment.Currency)

	if s.Cache != nil {
		s.Cache.Set(ctx, key, resp, statsCacheTTL)
	}
	return resp, nil
}
