package ledger

import (
	"context"
	"time"

	"vault-core/internal/model"
)

// HTTPMinter 通过 HTTP 访问的铸币/赎回服务
type HTTPMinter struct {
	*httpClient
}

func NewHTTPMinter(baseURL string, timeout time.Duration) *HTTPMinter {
	return &HTTPMinter{httpClient: newHTTPClient(baseURL, timeout)}
}

type depositAddressRequest struct {
	Owner string `json:"owner"`
}

type depositAddressResponse struct {
	Address string `json:"address"`
}

func (m *HTTPMinter) DepositAddress(ctx context.Context, owner model.Owner) (string, error) {
	var resp depositAddressResponse
	if err := m.post(ctx, "/v1/deposit_address", depositAddressRequest{Owner: owner.String()}, &resp); err != nil {
		return "", err
	}
	return resp.Address, nil
}

type withdrawRequest struct {
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
	Address string `json:"address"`
}

type withdrawResponse struct {
	WithdrawalID uint64 `json:"withdrawal_id"`
}

func (m *HTTPMinter) Withdraw(ctx context.Context, owner model.Owner, amount uint64, externalAddress string) (uint64, error) {
	req := withdrawRequest{
		Owner:   owner.String(),
		Amount:  amount,
		Address: externalAddress,
	}
	var resp withdrawResponse
	if err := m.post(ctx, "/v1/withdraw", req, &resp); err != nil {
		return 0, err
	}
	return resp.WithdrawalID, nil
}

type withdrawalStatusRequest struct {
	ID uint64 `json:"id"`
}

type withdrawalStatusResponse struct {
	State         string `json:"state"`
	TxHash        string `json:"tx_hash,omitempty"`
	Confirmations uint32 `json:"confirmations"`
}

func (m *HTTPMinter) WithdrawalStatus(ctx context.Context, id uint64) (model.WithdrawalStatus, error) {
	var resp withdrawalStatusResponse
	if err := m.post(ctx, "/v1/withdrawal_status", withdrawalStatusRequest{ID: id}, &resp); err != nil {
		return model.WithdrawalStatus{}, err
	}
	return model.WithdrawalStatus{
		ID:            id,
		State:         model.WithdrawalState(resp.State),
		TxHash:        resp.TxHash,
		Confirmations: resp.Confirmations,
	}, nil
}
