package vault

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/zap"

	"vault-core/internal/model"
	"vault-core/pkg/breaker"
	"vault-core/pkg/errno"
	"vault-core/pkg/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
	// 日限额窗口
	withdrawalWindow = 24 * time.Hour
)

// Vault 单资产金库的统一契约
type Vault interface {
	Owner() model.Owner
	Kind() model.AssetKind

	// Balance 返回本地记账余额, 不触发外部调用
	Balance() uint64
	// UpdateBalance 缓存过期时向外部账本查询并更新本地余额
	UpdateBalance(ctx context.Context) (uint64, error)
	// Transfer 托管内转账, 返回账本区块索引
	Transfer(ctx context.Context, amount uint64, recipient string) (uint64, error)

	TransactionHistory(limit int) []model.Transaction
	PendingTransactions() []model.Transaction
	CancelTransaction(id model.TransactionID) error
	RetryFailedTransaction(id model.TransactionID) error
	CleanupOldTransactions(maxAge time.Duration) int

	Metrics() Metrics
	Snapshot() State
	Restore(State)
}

// ExternalChainVault 支持跨链提现的金库
type ExternalChainVault interface {
	Vault
	// Withdraw 向外链地址提现, 返回铸币服务提现单号
	Withdraw(ctx context.Context, amount uint64, externalAddress string) (uint64, error)
}

// Config 单一资产金库的风控参数
type Config struct {
	Asset                model.AssetKind
	TransferFee          uint64
	MinTransfer          uint64
	MinWithdrawal        uint64
	DailyWithdrawalLimit uint64
	BalanceCacheTTL      time.Duration
	BreakerThreshold     uint32
	BreakerTimeout       time.Duration
	MaxRetries           int
}

func (c *Config) applyDefaults() {
	if c.BalanceCacheTTL <= 0 {
		c.BalanceCacheTTL = 30 * time.Second
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.MinTransfer == 0 {
		c.MinTransfer = 1_000
	}
}

// Metrics 单金库运行指标
type Metrics struct {
	Asset          model.AssetKind `json:"asset"`
	Balance        uint64          `json:"balance"`
	VolumeIn       uint64          `json:"volume_in"`
	VolumeOut      uint64          `json:"volume_out"`
	SuccessfulOps  uint64          `json:"successful_ops"`
	FailedOps      uint64          `json:"failed_ops"`
	PendingTxs     int             `json:"pending_txs"`
	TotalTxs       int             `json:"total_txs"`
	DailyWithdrawn uint64          `json:"daily_withdrawn"`
	BreakerState   string          `json:"breaker_state"`
	LastActivity   time.Time       `json:"last_activity"`
}

// baseVault 三种资产共享的记账与风控骨架
//
// 并发约定: opMu 串行化完整操作 (含外部调用), 同一金库的第二个操作排队等待;
// mu 只保护内部状态, 外部调用期间不持有, 供只读访问并发使用。
type baseVault struct {
	opMu sync.Mutex
	mu   sync.Mutex

	clock  clock.Clock
	owner  model.Owner
	cfg    Config
	ledger LedgerClient
	brk    *breaker.CircuitBreaker

	// recipient 合法性由具体资产决定
	validateRecipient func(string) error

	balance      uint64
	balanceCache *model.CachedBalance

	txs       map[model.TransactionID]*model.Transaction
	txOrder   []model.TransactionID
	opCounter uint64

	volumeIn       uint64
	volumeOut      uint64
	successfulOps  uint64
	failedOps      uint64
	dailyWithdrawn uint64
	lastWindowAt   time.Time
	lastActivity   time.Time
}

func newBaseVault(owner model.Owner, cfg Config, ledger LedgerClient, clk clock.Clock) *baseVault {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	cfg.applyDefaults()
	now := clk.Now()
	return &baseVault{
		clock:        clk,
		owner:        owner,
		cfg:          cfg,
		ledger:       ledger,
		brk:          breaker.New(cfg.BreakerThreshold, cfg.BreakerTimeout, clk),
		txs:          make(map[model.TransactionID]*model.Transaction),
		lastWindowAt: now,
		lastActivity: now,
	}
}

func (v *baseVault) Owner() model.Owner    { return v.owner }
func (v *baseVault) Kind() model.AssetKind { return v.cfg.Asset }

func (v *baseVault) Balance() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance
}

// UpdateBalance 缓存命中直接返回, 否则穿透到外部账本
func (v *baseVault) UpdateBalance(ctx context.Context) (uint64, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	if v.balanceCache.Valid(v.clock.Now()) {
		cached := v.balanceCache.Amount
		v.mu.Unlock()
		return cached, nil
	}
	v.mu.Unlock()

	if !v.brk.CanExecute() {
		return 0, errno.ErrCircuitOpen
	}

	fresh, err := v.ledger.BalanceOf(ctx, v.owner)
	if err != nil {
		v.brk.RecordFailure()
		v.recordFailure()
		return 0, &errno.VaultError{Op: "update_balance", Details: err.Error()}
	}
	v.brk.RecordSuccess()

	v.mu.Lock()
	defer v.mu.Unlock()
	// 入金只能通过账本查询观察到
	if fresh > v.balance {
		v.volumeIn += fresh - v.balance
	}
	v.balance = fresh
	v.balanceCache = &model.CachedBalance{
		Amount:   fresh,
		CachedAt: v.clock.Now(),
		TTL:      v.cfg.BalanceCacheTTL,
	}
	v.successfulOps++
	v.lastActivity = v.clock.Now()
	return fresh, nil
}

// Transfer 托管内转账: 校验 -> 记账 -> 外部调用 -> 提交
func (v *baseVault) Transfer(ctx context.Context, amount uint64, recipient string) (uint64, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if amount < v.cfg.MinTransfer {
		return 0, errno.Validationf("amount %d below minimum transfer %d", amount, v.cfg.MinTransfer)
	}
	if recipient == "" {
		return 0, errno.Validationf("recipient is empty")
	}
	if v.validateRecipient != nil {
		if err := v.validateRecipient(recipient); err != nil {
			return 0, errno.Validationf("bad recipient: %v", err)
		}
	}

	fee := v.cfg.TransferFee
	total := amount + fee
	if total < amount { // 溢出
		return 0, errno.Validationf("amount overflow")
	}

	v.mu.Lock()
	if v.balance < total {
		v.mu.Unlock()
		return 0, errno.ErrInsufficientFunds
	}
	v.mu.Unlock()

	if !v.brk.CanExecute() {
		return 0, errno.ErrCircuitOpen
	}

	tx := v.beginTransaction(amount, fee, recipient)

	blockIndex, err := v.ledger.Transfer(ctx, v.owner, recipient, amount, fee)
	if err != nil {
		v.brk.RecordFailure()
		v.failTransaction(tx.ID, err.Error())
		return 0, &errno.VaultError{Op: "transfer", Details: err.Error()}
	}
	v.brk.RecordSuccess()

	v.completeTransaction(tx.ID, total, &blockIndex, nil)
	logger.Info("vault transfer completed",
		zap.String("owner", v.owner.String()),
		zap.String("asset", string(v.cfg.Asset)),
		zap.Uint64("amount", amount),
		zap.Uint64("block_index", blockIndex))
	return blockIndex, nil
}

// beginTransaction 在台账中登记一笔 processing 交易
func (v *baseVault) beginTransaction(amount, fee uint64, recipient string) *model.Transaction {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.opCounter++
	now := v.clock.Now()
	tx := &model.Transaction{
		ID:        model.NewTransactionID(now, v.owner, v.opCounter, v.cfg.Asset),
		Asset:     v.cfg.Asset,
		From:      v.owner,
		To:        recipient,
		Amount:    amount,
		Fee:       fee,
		Status:    model.TxProcessing,
		CreatedAt: now,
	}
	v.txs[tx.ID] = tx
	v.txOrder = append(v.txOrder, tx.ID)
	return tx
}

// completeTransaction 提交成功结果并扣减本地余额
func (v *baseVault) completeTransaction(id model.TransactionID, deducted uint64, blockIndex, withdrawalID *uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	tx, ok := v.txs[id]
	if !ok {
		return
	}
	now := v.clock.Now()
	tx.Status = model.TxCompleted
	tx.CompletedAt = &now
	tx.BlockIndex = blockIndex
	tx.WithdrawalID = withdrawalID

	// 饱和扣减: 本地余额落后于账本时不可下穿零
	if v.balance >= deducted {
		v.balance -= deducted
	} else {
		v.balance = 0
	}
	v.volumeOut += tx.Amount
	v.successfulOps++
	v.lastActivity = now
	// 出金后缓存必然过期
	v.balanceCache = nil
}

func (v *baseVault) failTransaction(id model.TransactionID, reason string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	tx, ok := v.txs[id]
	if !ok {
		return
	}
	tx.Status = model.TxFailed
	tx.FailureReason = reason
	v.failedOps++
	v.lastActivity = v.clock.Now()
}

func (v *baseVault) recordFailure() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failedOps++
	v.lastActivity = v.clock.Now()
}

// checkDailyLimit 滚动 24h 窗口限额, 通过则预占额度
func (v *baseVault) checkDailyLimit(amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.clock.Now()
	if now.Sub(v.lastWindowAt) >= withdrawalWindow {
		v.dailyWithdrawn = 0
		v.lastWindowAt = now
	}
	if v.cfg.DailyWithdrawalLimit > 0 && v.dailyWithdrawn+amount > v.cfg.DailyWithdrawalLimit {
		return errno.Validationf("daily withdrawal limit exceeded: %d + %d > %d",
			v.dailyWithdrawn, amount, v.cfg.DailyWithdrawalLimit)
	}
	v.dailyWithdrawn += amount
	return nil
}

// releaseDailyLimit 提现失败时退还预占额度
func (v *baseVault) releaseDailyLimit(amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.dailyWithdrawn >= amount {
		v.dailyWithdrawn -= amount
	} else {
		v.dailyWithdrawn = 0
	}
}

// TransactionHistory 按创建时间倒序, limit 默认 50 上限 100
func (v *baseVault) TransactionHistory(limit int) []model.Transaction {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]model.Transaction, 0, limit)
	for i := len(v.txOrder) - 1; i >= 0 && len(out) < limit; i-- {
		if tx, ok := v.txs[v.txOrder[i]]; ok {
			out = append(out, *tx)
		}
	}
	return out
}

func (v *baseVault) PendingTransactions() []model.Transaction {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []model.Transaction
	for _, id := range v.txOrder {
		if tx, ok := v.txs[id]; ok && !tx.Status.Terminal() {
			out = append(out, *tx)
		}
	}
	return out
}

// CancelTransaction 只允许取消尚未进入外部调用的 pending 交易
func (v *baseVault) CancelTransaction(id model.TransactionID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	tx, ok := v.txs[id]
	if !ok {
		return errno.Validationf("transaction %s not found", id.Hex())
	}
	if tx.Status != model.TxPending {
		return errno.Validationf("transaction %s is %s, only pending can be cancelled", id.Hex(), tx.Status)
	}
	tx.Status = model.TxCancelled
	v.lastActivity = v.clock.Now()
	return nil
}

// RetryFailedTransaction 将失败交易重置回 pending, 不自动重新提交
func (v *baseVault) RetryFailedTransaction(id model.TransactionID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	tx, ok := v.txs[id]
	if !ok {
		return errno.Validationf("transaction %s not found", id.Hex())
	}
	if tx.Status != model.TxFailed {
		return errno.Validationf("transaction %s is %s, only failed can be retried", id.Hex(), tx.Status)
	}
	if tx.RetryCount >= v.cfg.MaxRetries {
		return errno.Validationf("transaction %s reached retry limit %d", id.Hex(), v.cfg.MaxRetries)
	}
	tx.RetryCount++
	tx.Status = model.TxPending
	tx.FailureReason = ""
	return nil
}

// CleanupOldTransactions 删除超过 maxAge 的终态交易
func (v *baseVault) CleanupOldTransactions(maxAge time.Duration) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	cutoff := v.clock.Now().Add(-maxAge)
	removed := 0
	kept := v.txOrder[:0]
	for _, id := range v.txOrder {
		tx, ok := v.txs[id]
		if !ok {
			continue
		}
		if tx.Status.Terminal() && tx.CreatedAt.Before(cutoff) {
			delete(v.txs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	v.txOrder = kept
	return removed
}

func (v *baseVault) Metrics() Metrics {
	v.mu.Lock()
	defer v.mu.Unlock()

	pending := 0
	for _, tx := range v.txs {
		if !tx.Status.Terminal() {
			pending++
		}
	}
	return Metrics{
		Asset:          v.cfg.Asset,
		Balance:        v.balance,
		VolumeIn:       v.volumeIn,
		VolumeOut:      v.volumeOut,
		SuccessfulOps:  v.successfulOps,
		FailedOps:      v.failedOps,
		PendingTxs:     pending,
		TotalTxs:       len(v.txs),
		DailyWithdrawn: v.dailyWithdrawn,
		BreakerState:   v.brk.State().String(),
		LastActivity:   v.lastActivity,
	}
}

// State 可序列化的金库快照, 熔断器与余额缓存不入快照
type State struct {
	Asset          model.AssetKind     `json:"asset"`
	Balance        uint64              `json:"balance"`
	OpCounter      uint64              `json:"op_counter"`
	VolumeIn       uint64              `json:"volume_in"`
	VolumeOut      uint64              `json:"volume_out"`
	SuccessfulOps  uint64              `json:"successful_ops"`
	FailedOps      uint64              `json:"failed_ops"`
	DailyWithdrawn uint64              `json:"daily_withdrawn"`
	LastWindowAt   time.Time           `json:"last_window_at"`
	Transactions   []model.Transaction `json:"transactions"`
}

func (v *baseVault) Snapshot() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := State{
		Asset:          v.cfg.Asset,
		Balance:        v.balance,
		OpCounter:      v.opCounter,
		VolumeIn:       v.volumeIn,
		VolumeOut:      v.volumeOut,
		SuccessfulOps:  v.successfulOps,
		FailedOps:      v.failedOps,
		DailyWithdrawn: v.dailyWithdrawn,
		LastWindowAt:   v.lastWindowAt,
		Transactions:   make([]model.Transaction, 0, len(v.txOrder)),
	}
	for _, id := range v.txOrder {
		if tx, ok := v.txs[id]; ok {
			st.Transactions = append(st.Transactions, *tx)
		}
	}
	return st
}

// Restore 覆盖台账与计数, 熔断器重置为 Closed, 余额缓存清空
func (v *baseVault) Restore(st State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.balance = st.Balance
	v.opCounter = st.OpCounter
	v.volumeIn = st.VolumeIn
	v.volumeOut = st.VolumeOut
	v.successfulOps = st.SuccessfulOps
	v.failedOps = st.FailedOps
	v.dailyWithdrawn = st.DailyWithdrawn
	v.lastWindowAt = st.LastWindowAt
	v.balanceCache = nil

	v.txs = make(map[model.TransactionID]*model.Transaction, len(st.Transactions))
	v.txOrder = make([]model.TransactionID, 0, len(st.Transactions))
	txs := append([]model.Transaction(nil), st.Transactions...)
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].CreatedAt.Before(txs[j].CreatedAt) })
	for i := range txs {
		tx := txs[i]
		v.txs[tx.ID] = &tx
		v.txOrder = append(v.txOrder, tx.ID)
	}
	v.brk.Reset()
}
