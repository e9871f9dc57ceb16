package routes

import (
	"vault-core/internal/handler"

	"github.com/gin-gonic/gin"
)

func RegisterVaultRoutes(rg *gin.RouterGroup, h *handler.VaultHandler) {
	wallet := rg.Group("/wallet")
	{
		wallet.POST("", h.CreateWallet)
		wallet.GET("/balances", h.GetBalances)
		wallet.GET("/balance/:asset", h.GetBalance)
		wallet.POST("/refresh", h.RefreshBalances)
		wallet.POST("/transfer", h.Transfer)
		wallet.POST("/withdraw", h.Withdraw)
		wallet.GET("/transactions/:asset", h.GetHistory)
		wallet.GET("/transactions/:asset/pending", h.GetPending)
		wallet.POST("/transactions/:asset/cancel", h.CancelTransaction)
		wallet.POST("/transactions/:asset/retry", h.RetryTransaction)
		wallet.GET("/deposit-address", h.GetDepositAddress)
		wallet.GET("/withdrawal/:id", h.GetWithdrawalStatus)
		wallet.GET("/metrics", h.GetMetrics)
	}
}
