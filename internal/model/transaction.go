package model

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"vault-core/pkg/crypto_util"
)

// TransactionID 32 字节确定性标识
// 由 时间戳 + owner + 操作计数 + 资产标签 哈希而来
type TransactionID [32]byte

func (id TransactionID) Hex() string {
	return hex.EncodeToString(id[:])
}

// JSON 表示统一用 hex, API 返回的 ID 可以原样传回取消/重试接口
func (id TransactionID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Hex())
}

func (id *TransactionID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseTransactionID(s)
	if !ok {
		return fmt.Errorf("bad transaction id %q", s)
	}
	*id = parsed
	return nil
}

func ParseTransactionID(s string) (TransactionID, bool) {
	var id TransactionID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return id, false
	}
	copy(id[:], b)
	return id, true
}

// NewTransactionID 生成交易 ID, opCounter 保证同一纳秒内也不重复
func NewTransactionID(now time.Time, owner Owner, opCounter uint64, asset AssetKind) TransactionID {
	buf := make([]byte, 0, 8+len(owner)+8+len(asset))
	buf = binary.BigEndian.AppendUint64(buf, uint64(now.UnixNano()))
	buf = append(buf, []byte(owner)...)
	buf = binary.BigEndian.AppendUint64(buf, opCounter)
	buf = append(buf, []byte(asset)...)
	return TransactionID(crypto_util.SHA256Bytes(buf))
}

// TransactionStatus 交易生命周期状态
type TransactionStatus string

const (
	TxPending    TransactionStatus = "pending"
	TxProcessing TransactionStatus = "processing"
	TxCompleted  TransactionStatus = "completed"
	TxFailed     TransactionStatus = "failed"
	TxCancelled  TransactionStatus = "cancelled"
)

// Terminal 终态交易不可再变更
func (s TransactionStatus) Terminal() bool {
	return s == TxCompleted || s == TxFailed || s == TxCancelled
}

// Transaction 金库内的一笔转账或提现记录
type Transaction struct {
	ID            TransactionID     `json:"id"`
	Asset         AssetKind         `json:"asset"`
	From          Owner             `json:"from"`
	To            string            `json:"to"`
	Amount        uint64            `json:"amount"`
	Fee           uint64            `json:"fee"`
	Status        TransactionStatus `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	BlockIndex    *uint64           `json:"block_index,omitempty"`    // 账本转账成功后的区块索引
	WithdrawalID  *uint64           `json:"withdrawal_id,omitempty"`  // 跨链提现在铸币服务的单号
	RetryCount    int               `json:"retry_count"`
}
