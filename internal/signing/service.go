package signing

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/zap"

	"vault-core/internal/model"
	"vault-core/pkg/crypto_util"
	"vault-core/pkg/errno"
	"vault-core/pkg/logger"
	"vault-core/pkg/ratelimit"
)

const (
	// 公钥缓存有效期
	pubKeyTTL = 5 * time.Minute
	// 待签消息上限, 超过的应先在调用方做摘要
	maxMessageSize = 1024
	// 派生路径限制
	maxPathSegments = 10
	segmentSize     = 4
)

type cachedPublicKey struct {
	key      []byte
	cachedAt time.Time
}

// Config 签名服务运行参数
type Config struct {
	KeyName              string
	MaxRequestsPerMinute int
}

// Service 管理每个 owner 的派生路径与公钥缓存
type Service struct {
	mu     sync.Mutex
	clock  clock.Clock
	oracle Oracle

	keyName string
	limiter *ratelimit.Limiter

	paths         map[model.Owner][][]byte
	pubKeys       map[string]cachedPublicKey // owner + path -> key
	totalRequests uint64
}

func NewService(oracle Oracle, cfg Config, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	if cfg.MaxRequestsPerMinute <= 0 {
		cfg.MaxRequestsPerMinute = 5
	}
	return &Service{
		clock:   clk,
		oracle:  oracle,
		keyName: cfg.KeyName,
		limiter: ratelimit.New(cfg.MaxRequestsPerMinute, clk),
		paths:   make(map[model.Owner][][]byte),
		pubKeys: make(map[string]cachedPublicKey),
	}
}

// SetDerivationPath 绑定 owner 的派生路径并使其旧公钥缓存失效
func (s *Service) SetDerivationPath(owner model.Owner, path [][]byte) error {
	if err := validatePath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 路径变更后旧缓存不再可信
	delete(s.pubKeys, cacheKey(owner, s.paths[owner]))

	cp := make([][]byte, len(path))
	for i, seg := range path {
		cp[i] = append([]byte(nil), seg...)
	}
	s.paths[owner] = cp
	return nil
}

// DerivationPath 返回 owner 当前绑定派生路径的副本
func (s *Service) DerivationPath(owner model.Owner) ([][]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.paths[owner]
	if !ok {
		return nil, false
	}
	cp := make([][]byte, len(p))
	for i, seg := range p {
		cp[i] = append([]byte(nil), seg...)
	}
	return cp, true
}

// PublicKey 返回 owner 的压缩公钥, 5 分钟内命中缓存不触发远程调用
func (s *Service) PublicKey(ctx context.Context, owner model.Owner) ([]byte, error) {
	s.mu.Lock()
	path, ok := s.paths[owner]
	if !ok {
		s.mu.Unlock()
		return nil, errno.Validationf("derivation path not set for owner %s", owner)
	}
	key := cacheKey(owner, path)
	if cached, hit := s.pubKeys[key]; hit && s.clock.Now().Sub(cached.cachedAt) < pubKeyTTL {
		out := append([]byte(nil), cached.key...)
		s.mu.Unlock()
		return out, nil
	}

	if err := s.limiter.Check("public_key"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.totalRequests++
	s.mu.Unlock()

	// 远程调用不持锁
	pub, err := s.oracle.PublicKey(ctx, s.keyName, path)
	if err != nil {
		logger.Warn("threshold public key fetch failed",
			zap.String("owner", owner.String()), zap.Error(err))
		return nil, &errno.SigningError{Op: "public_key", Details: err.Error()}
	}

	s.mu.Lock()
	s.pubKeys[key] = cachedPublicKey{key: append([]byte(nil), pub...), cachedAt: s.clock.Now()}
	s.mu.Unlock()

	return pub, nil
}

// Sign 校验消息后做 SHA256 摘要并请求远程签名, 签名结果不缓存
func (s *Service) Sign(ctx context.Context, owner model.Owner, message []byte) ([]byte, error) {
	if len(message) == 0 {
		return nil, errno.Validationf("message is empty")
	}
	if len(message) > maxMessageSize {
		return nil, errno.Validationf("message exceeds %d bytes: %d", maxMessageSize, len(message))
	}

	s.mu.Lock()
	path, ok := s.paths[owner]
	if !ok {
		s.mu.Unlock()
		return nil, errno.Validationf("derivation path not set for owner %s", owner)
	}
	if err := s.limiter.Check("sign"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.totalRequests++
	s.mu.Unlock()

	digest := crypto_util.SHA256Bytes(message)
	sig, err := s.oracle.Sign(ctx, s.keyName, path, digest[:])
	if err != nil {
		logger.Warn("threshold signing failed",
			zap.String("owner", owner.String()), zap.Error(err))
		return nil, &errno.SigningError{Op: "sign", Details: err.Error()}
	}
	return sig, nil
}

// EvictExpired 清理过期公钥缓存, 返回清理条数
func (s *Service) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	evicted := 0
	for k, v := range s.pubKeys {
		if now.Sub(v.cachedAt) >= pubKeyTTL {
			delete(s.pubKeys, k)
			evicted++
		}
	}
	return evicted
}

// Metrics 签名服务统计
type Metrics struct {
	TotalRequests    uint64 `json:"total_requests"`
	CachedPublicKeys int    `json:"cached_public_keys"`
	ActiveOwners     int    `json:"active_owners"`
}

func (s *Service) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Metrics{
		TotalRequests:    s.totalRequests,
		CachedPublicKeys: len(s.pubKeys),
		ActiveOwners:     len(s.paths),
	}
}

func validatePath(path [][]byte) error {
	if len(path) > maxPathSegments {
		return errno.Validationf("derivation path exceeds %d segments: %d", maxPathSegments, len(path))
	}
	for i, seg := range path {
		if len(seg) != segmentSize {
			return errno.Validationf("path segment %d must be %d bytes, got %d", i, segmentSize, len(seg))
		}
	}
	return nil
}

func cacheKey(owner model.Owner, path [][]byte) string {
	s := string(owner)
	for _, seg := range path {
		s += "/" + hex.EncodeToString(seg)
	}
	return s
}
