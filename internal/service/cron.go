package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"vault-core/internal/backup"
	"vault-core/internal/hdwallet"
	"vault-core/internal/signing"
	"vault-core/internal/vault"
	"vault-core/pkg/logger"
	"vault-core/pkg/utils/lock"
)

// 终态交易保留时长, 超过即被定时任务清理
const transactionRetention = 7 * 24 * time.Hour

// CronService 周期性维护任务: 缓存淘汰、台账清理、定时备份
// 多实例部署时通过 Redis 锁保证同一任务只有一个节点执行
type CronService struct {
	cron    *cron.Cron
	redis   *redis.Client
	signing *signing.Service
	wallets *hdwallet.Registry
	vaults  *vault.Registry
	coord   *backup.Coordinator
}

func NewCronService(rdb *redis.Client, sig *signing.Service, wallets *hdwallet.Registry,
	vaults *vault.Registry, coord *backup.Coordinator) *CronService {
	c := cron.New(cron.WithLogger(logger.CronLogger{}))
	return &CronService{
		cron:    c,
		redis:   rdb,
		signing: sig,
		wallets: wallets,
		vaults:  vaults,
		coord:   coord,
	}
}

func (s *CronService) Start() {
	_, _ = s.cron.AddFunc("@every 10m", s.EvictCaches)
	_, _ = s.cron.AddFunc("@every 1h", s.CleanupTransactions)
	if s.coord != nil {
		_, _ = s.cron.AddFunc("@every 6h", s.RunBackup)
	}

	s.cron.Start()
	logger.Info("cron service started")
}

func (s *CronService) Stop() {
	s.cron.Stop()
	logger.Info("cron service stopped")
}

// withLock 获取分布式锁后执行任务, 拿不到锁说明别的节点在跑
func (s *CronService) withLock(name string, ttl time.Duration, fn func(ctx context.Context)) {
	ctx := context.Background()
	if s.redis == nil {
		fn(ctx)
		return
	}

	locker := lock.NewRedisLock(s.redis)
	key := "cron:" + name
	locked, err := locker.Acquire(ctx, key, ttl)
	if err != nil || !locked {
		logger.Debug("cron task skipped, lock held elsewhere", zap.String("task", name))
		return
	}
	defer locker.Release(ctx, key)

	fn(ctx)
}

// EvictCaches 淘汰签名服务过期公钥与派生引擎的冷缓存
func (s *CronService) EvictCaches() {
	s.withLock("evict_caches", time.Minute, func(ctx context.Context) {
		evicted := s.signing.EvictExpired()
		cleaned := s.wallets.CleanupCaches()
		logger.Info("cache eviction done",
			zap.Int("public_keys", evicted),
			zap.Int("wallet_entries", cleaned))
	})
}

// CleanupTransactions 清理超过保留期的终态交易
func (s *CronService) CleanupTransactions() {
	s.withLock("cleanup_transactions", time.Minute, func(ctx context.Context) {
		removed := s.vaults.CleanupOldTransactions(transactionRetention)
		if removed > 0 {
			logger.Info("old transactions cleaned", zap.Int("removed", removed))
		}
	})
}

// RunBackup 定时全量备份
func (s *CronService) RunBackup() {
	s.withLock("backup", 5*time.Minute, func(ctx context.Context) {
		checksum, err := s.coord.Backup(ctx)
		if err != nil {
			logger.Error("scheduled backup failed", zap.Error(err))
			return
		}
		logger.Info("scheduled backup done", zap.String("checksum", checksum))
	})
}
