package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"vault-core/internal/handler/response"
	"vault-core/internal/model"
	"vault-core/internal/service"
	"vault-core/pkg/errno"
)

// VaultHandler 钱包与金库操作的 HTTP 入口
type VaultHandler struct {
	svc *service.VaultService
}

func NewVaultHandler(svc *service.VaultService) *VaultHandler {
	return &VaultHandler{svc: svc}
}

func assetParam(c *gin.Context) (model.AssetKind, bool) {
	asset := model.AssetKind(c.Param("asset"))
	if !asset.Valid() {
		response.Error(c, errno.Validationf("unknown asset %q", c.Param("asset")))
		return "", false
	}
	return asset, true
}

// CreateWallet POST /wallet
func (h *VaultHandler) CreateWallet(c *gin.Context) {
	created, err := h.svc.CreateWallet(c.Request.Context(), Principal(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"created": created})
}

// GetBalances GET /wallet/balances
func (h *VaultHandler) GetBalances(c *gin.Context) {
	balances, err := h.svc.AllBalances(Principal(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"balances": balances})
}

// GetBalance GET /wallet/balance/:asset
func (h *VaultHandler) GetBalance(c *gin.Context) {
	asset, ok := assetParam(c)
	if !ok {
		return
	}
	balance, err := h.svc.Balance(Principal(c), asset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"asset": asset, "balance": balance})
}

// RefreshBalances POST /wallet/refresh
func (h *VaultHandler) RefreshBalances(c *gin.Context) {
	balances, errs, err := h.svc.RefreshBalances(c.Request.Context(), Principal(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	failed := make(map[model.AssetKind]string, len(errs))
	for asset, e := range errs {
		failed[asset] = e.Error()
	}
	response.Success(c, gin.H{"balances": balances, "failed": failed})
}

type transferRequest struct {
	Asset     string `json:"asset" binding:"required"`
	Amount    uint64 `json:"amount" binding:"required"`
	Recipient string `json:"recipient" binding:"required"`
}

// Transfer POST /wallet/transfer
func (h *VaultHandler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	asset := model.AssetKind(req.Asset)
	if !asset.Valid() {
		response.Error(c, errno.Validationf("unknown asset %q", req.Asset))
		return
	}

	blockIndex, err := h.svc.Transfer(c.Request.Context(), Principal(c), asset, req.Amount, req.Recipient)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"block_index": blockIndex})
}

type withdrawRequest struct {
	Asset   string `json:"asset" binding:"required"`
	Amount  uint64 `json:"amount" binding:"required"`
	Address string `json:"address" binding:"required"`
}

// Withdraw POST /wallet/withdraw
func (h *VaultHandler) Withdraw(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	asset := model.AssetKind(req.Asset)
	if !asset.Valid() {
		response.Error(c, errno.Validationf("unknown asset %q", req.Asset))
		return
	}

	withdrawalID, err := h.svc.Withdraw(c.Request.Context(), Principal(c), asset, req.Amount, req.Address)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"withdrawal_id": withdrawalID})
}

// GetHistory GET /wallet/transactions/:asset?limit=
func (h *VaultHandler) GetHistory(c *gin.Context) {
	asset, ok := assetParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	history, err := h.svc.History(Principal(c), asset, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"transactions": history})
}

// GetPending GET /wallet/transactions/:asset/pending
func (h *VaultHandler) GetPending(c *gin.Context) {
	asset, ok := assetParam(c)
	if !ok {
		return
	}

	pending, err := h.svc.PendingTransactions(Principal(c), asset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"transactions": pending})
}

type transactionActionRequest struct {
	ID string `json:"id" binding:"required"`
}

// CancelTransaction POST /wallet/transactions/:asset/cancel
func (h *VaultHandler) CancelTransaction(c *gin.Context) {
	asset, ok := assetParam(c)
	if !ok {
		return
	}
	var req transactionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	if err := h.svc.CancelTransaction(Principal(c), asset, req.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// RetryTransaction POST /wallet/transactions/:asset/retry
func (h *VaultHandler) RetryTransaction(c *gin.Context) {
	asset, ok := assetParam(c)
	if !ok {
		return
	}
	var req transactionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	if err := h.svc.RetryTransaction(Principal(c), asset, req.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// GetDepositAddress GET /wallet/deposit-address
func (h *VaultHandler) GetDepositAddress(c *gin.Context) {
	addr, err := h.svc.DepositAddress(c.Request.Context(), Principal(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"address": addr})
}

// GetWithdrawalStatus GET /wallet/withdrawal/:id
func (h *VaultHandler) GetWithdrawalStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, errno.Validationf("bad withdrawal id %q", c.Param("id")))
		return
	}
	status, err := h.svc.WithdrawalStatus(c.Request.Context(), Principal(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// GetMetrics GET /wallet/metrics
func (h *VaultHandler) GetMetrics(c *gin.Context) {
	metrics, err := h.svc.Metrics(Principal(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, metrics)
}

// SystemHealth GET /health/system
func (h *VaultHandler) SystemHealth(c *gin.Context) {
	response.Success(c, h.svc.SystemHealth(c.Request.Context()))
}
