package v1

import (
	"net/http"

	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/service"
	"github.com/gin-gonic/gin"
)

type StatsHandler struct {
	statsService service.StatsService
	logger       *logger.Logger
}

func NewStatsHandler(statsService service.StatsService, logger *logger.Logger) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
		logger:       logger,
	}
}

// GetStats godoc
// @Summary Payment statistics
// @Tags Stats
// @Produce json
// @Success 200 {object} dto.StatsResponse
// @Router /stats [get]
func (h *StatsHandler) GetStats(c *gin.Context) {
	resp, err := h.statsService.GetStats(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
