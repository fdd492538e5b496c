package dto

import (
	"time"

	"github.com/dagdev/vpnbill/internal/provisioning"
	"github.com/dagdev/vpnbill/internal/validator"
)

// AccessStatusResponse describes a payer's access grant on the panel
type AccessStatusResponse struct {
	PayerID   int64   `json:"payer_id"`
	Username  string  `json:"username"`
	Status    string  `json:"status"`
	UsedBytes int64   `json:"used_bytes"`
	ExpireAt  *string `json:"expire_at,omitempty"`
}

func NewAccessStatusResponse(payerID int64, username string, st *provisioning.Status) *AccessStatusResponse {
	resp := &AccessStatusResponse{
		PayerID:   payerID,
		Username:  username,
		Status:    st.Status,
		UsedBytes: st.UsedBytes,
	}
	if st.ExpireAt != nil {
		s := st.ExpireAt.UTC().Format(time.RFC3339)
		resp.ExpireAt = &s
	}
	return resp
}

// SetAccessExpiryRequest moves a payer's access expiry
type SetAccessExpiryRequest struct {
	ExpireAt time.Time `json:"expire_at" validate:"required"`
}

func (r *SetAccessExpiryRequest) Validate() error {
	return validator.ValidateRequest(r)
}
