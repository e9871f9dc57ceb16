package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	WalletCreatedTotal     prometheus.Counter
	TransferAmountTotal    *prometheus.CounterVec
	WithdrawAmountTotal    *prometheus.CounterVec
	VaultOperationsTotal   *prometheus.CounterVec
	VaultOperationDuration *prometheus.HistogramVec
	SigningRequestsTotal   *prometheus.CounterVec
	CircuitBreakerState    *prometheus.GaugeVec
	RateLimitRejectedTotal *prometheus.CounterVec
}

// Global Metrics Instance
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		WalletCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_wallet_created_total",
			Help: "The total number of wallets created",
		}),
		TransferAmountTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_transfer_amount_total",
			Help: "The total amount transferred, in smallest units",
		}, []string{"asset"}),
		WithdrawAmountTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_withdraw_amount_total",
			Help: "The total amount withdrawn to external chains, in smallest units",
		}, []string{"asset"}),
		VaultOperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_operations_total",
			Help: "Total vault operations by result",
		}, []string{"operation", "status"}),
		VaultOperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_operation_duration_seconds",
			Help:    "Duration of vault operations including external ledger calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		SigningRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_signing_requests_total",
			Help: "Total threshold signing requests",
		}, []string{"operation", "status"}),
		CircuitBreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_circuit_breaker_state",
			Help: "Circuit breaker state per asset (0=closed, 1=open, 2=half_open)",
		}, []string{"asset"}),
		RateLimitRejectedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_rate_limit_rejected_total",
			Help: "Requests rejected by the per-wallet rate limiter",
		}, []string{"operation"}),
	}
}
