package event

import "time"

// Topic 常量, 下游按主题订阅
const (
	TopicTransfer   = "vault_events_transfer"
	TopicWithdrawal = "vault_events_withdrawal"
	TopicBalance    = "vault_events_balance"
	TopicWallet     = "vault_events_wallet"
)

// WalletCreatedEvent 钱包创建事件
type WalletCreatedEvent struct {
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
}

// TransferCompletedEvent 托管内转账完成事件
type TransferCompletedEvent struct {
	TransactionID string    `json:"transaction_id"`
	Owner         string    `json:"owner"`
	Recipient     string    `json:"recipient"`
	Asset         string    `json:"asset"`
	Amount        uint64    `json:"amount"`
	Fee           uint64    `json:"fee"`
	BlockIndex    uint64    `json:"block_index"`
	CompletedAt   time.Time `json:"completed_at"`
}

// WithdrawalSubmittedEvent 跨链提现已提交事件
type WithdrawalSubmittedEvent struct {
	TransactionID   string    `json:"transaction_id"`
	WithdrawalID    uint64    `json:"withdrawal_id"`
	Owner           string    `json:"owner"`
	Asset           string    `json:"asset"`
	Amount          uint64    `json:"amount"`
	ExternalAddress string    `json:"external_address"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

// BalanceRefreshedEvent 余额刷新事件, 入金只能通过该事件观察到
type BalanceRefreshedEvent struct {
	Owner       string    `json:"owner"`
	Asset       string    `json:"asset"`
	Balance     uint64    `json:"balance"`
	RefreshedAt time.Time `json:"refreshed_at"`
}
