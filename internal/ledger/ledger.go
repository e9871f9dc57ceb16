package ledger

import (
	"context"
	"time"

	"vault-core/internal/model"
)

// HTTPLedger 通过 HTTP 访问的资产账本
type HTTPLedger struct {
	*httpClient
}

func NewHTTPLedger(baseURL string, timeout time.Duration) *HTTPLedger {
	return &HTTPLedger{httpClient: newHTTPClient(baseURL, timeout)}
}

type balanceOfRequest struct {
	Owner string `json:"owner"`
}

type balanceOfResponse struct {
	Balance uint64 `json:"balance"`
}

func (l *HTTPLedger) BalanceOf(ctx context.Context, owner model.Owner) (uint64, error) {
	var resp balanceOfResponse
	if err := l.post(ctx, "/v1/balance_of", balanceOfRequest{Owner: owner.String()}, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

type transferRequest struct {
	Owner     string `json:"owner"`
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Fee       uint64 `json:"fee"`
}

type transferResponse struct {
	BlockIndex uint64 `json:"block_index"`
}

func (l *HTTPLedger) Transfer(ctx context.Context, owner model.Owner, recipient string, amount, fee uint64) (uint64, error) {
	req := transferRequest{
		Owner:     owner.String(),
		Recipient: recipient,
		Amount:    amount,
		Fee:       fee,
	}
	var resp transferResponse
	if err := l.post(ctx, "/v1/transfer", req, &resp); err != nil {
		return 0, err
	}
	return resp.BlockIndex, nil
}
