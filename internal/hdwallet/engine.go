// Package hdwallet 提供本地 BIP-32 分层确定性派生:
// 子密钥/地址缓存、批量派生与交易签名。
package hdwallet

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/clock"

	"vault-core/internal/model"
	"vault-core/pkg/address"
	"vault-core/pkg/bip32"
	"vault-core/pkg/crypto_util"
)

const (
	// 派生索引上限
	MaxIndex = 1_000_000
	// 基路径最大层数
	maxPathDepth = 6
	// 地址缓存有效期
	addressTTL = time.Hour
	// 待签数据上限
	maxSignSize = 10 * 1024
	// 批量派生单次上限
	maxBatchCount = 100
)

var (
	ErrInvalidIndex  = errors.New("派生索引超出上限")
	ErrInvalidPath   = errors.New("基路径层数超出上限")
	ErrOversizedData = errors.New("待签数据超出上限")
)

type cachedKey struct {
	key         bip32.ExtendedKey
	cachedAt    time.Time
	lastAccess  time.Time
	accessCount uint64
}

type addrCacheKey struct {
	index uint32
	typ   address.BTCAddressType
}

type cachedAddress struct {
	addr     string
	cachedAt time.Time
}

// Engine 单个 owner 的 HD 派生引擎
// 种子只在构造时使用一次, 之后持有的是基路径下的扩展私钥。
// Engine 本身不做并发保护, 并发访问由 Registry 串行化。
type Engine struct {
	clock   clock.Clock
	network *chaincfg.Params
	btcGen  *address.BTCGenerator

	seed     []byte // 备份快照需要
	basePath string
	baseKey  bip32.ExtendedKey

	keyCache  map[uint32]*cachedKey
	addrCache map[addrCacheKey]cachedAddress

	createdAt  time.Time
	lastUsed   time.Time
	usageCount uint64
}

// New 从种子构建引擎, 种子长度限制在 16-64 字节
func New(seed []byte, basePath string, network *chaincfg.Params, clk clock.Clock) (*Engine, error) {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	if network == nil {
		network = &chaincfg.MainNetParams
	}
	if err := validateBasePath(basePath); err != nil {
		return nil, err
	}

	wallet, err := bip32.NewMasterKeyFromSeed(seed, network)
	if err != nil {
		return nil, err
	}
	baseKey, err := wallet.DerivePath(basePath)
	if err != nil {
		return nil, fmt.Errorf("派生基路径失败: %w", err)
	}

	now := clk.Now()
	return &Engine{
		clock:     clk,
		network:   network,
		btcGen:    address.NewBTCGenerator(network),
		seed:      append([]byte(nil), seed...),
		basePath:  basePath,
		baseKey:   baseKey,
		keyCache:  make(map[uint32]*cachedKey),
		addrCache: make(map[addrCacheKey]cachedAddress),
		createdAt: now,
		lastUsed:  now,
	}, nil
}

func validateBasePath(path string) error {
	trimmed := strings.TrimPrefix(strings.TrimSpace(path), "m/")
	if trimmed == "" {
		return nil
	}
	if len(strings.Split(trimmed, "/")) > maxPathDepth {
		return ErrInvalidPath
	}
	return nil
}

// deriveKey 带缓存的子密钥派生
func (e *Engine) deriveKey(index uint32) (bip32.ExtendedKey, error) {
	if index > MaxIndex {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}

	now := e.clock.Now()
	e.lastUsed = now
	e.usageCount++

	if entry, ok := e.keyCache[index]; ok {
		entry.lastAccess = now
		entry.accessCount++
		return entry.key, nil
	}

	child, err := e.baseKey.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("派生子密钥 %d 失败: %w", index, err)
	}
	e.keyCache[index] = &cachedKey{key: child, cachedAt: now, lastAccess: now, accessCount: 1}
	return child, nil
}

// DerivePrivateKey 派生索引对应的私钥
func (e *Engine) DerivePrivateKey(index uint32) (*btcec.PrivateKey, error) {
	key, err := e.deriveKey(index)
	if err != nil {
		return nil, err
	}
	return key.ECPrivKey()
}

// DerivePublicKey 派生索引对应的压缩公钥
func (e *Engine) DerivePublicKey(index uint32) ([]byte, error) {
	key, err := e.deriveKey(index)
	if err != nil {
		return nil, err
	}
	pub, err := key.ECPubKey()
	if err != nil {
		return nil, err
	}
	return pub.SerializeCompressed(), nil
}

// DeriveAddress 派生指定类型的地址, 结果缓存 1 小时
func (e *Engine) DeriveAddress(index uint32, typ address.BTCAddressType) (string, error) {
	ck := addrCacheKey{index: index, typ: typ}
	now := e.clock.Now()
	if entry, ok := e.addrCache[ck]; ok && now.Sub(entry.cachedAt) < addressTTL {
		return entry.addr, nil
	}

	pub, err := e.DerivePublicKey(index)
	if err != nil {
		return "", err
	}
	addr, err := e.btcGen.PubKeyToTypedAddress(pub, typ)
	if err != nil {
		return "", err
	}
	e.addrCache[ck] = cachedAddress{addr: addr, cachedAt: now}
	return addr, nil
}

// DerivedAddress 批量派生结果条目
type DerivedAddress struct {
	Index   uint32 `json:"index"`
	Address string `json:"address"`
}

// BatchDeriveAddresses 连续派生 count 个地址, 任一失败立即返回
func (e *Engine) BatchDeriveAddresses(start, count uint32, typ address.BTCAddressType) ([]DerivedAddress, error) {
	if count == 0 || count > maxBatchCount {
		return nil, fmt.Errorf("批量数量必须在 1-%d 之间: %d", maxBatchCount, count)
	}
	if start > MaxIndex || start+count-1 > MaxIndex {
		return nil, fmt.Errorf("%w: %d+%d", ErrInvalidIndex, start, count)
	}

	out := make([]DerivedAddress, 0, count)
	for i := uint32(0); i < count; i++ {
		addr, err := e.DeriveAddress(start+i, typ)
		if err != nil {
			return nil, err
		}
		out = append(out, DerivedAddress{Index: start + i, Address: addr})
	}
	return out, nil
}

// SignData 用索引对应的私钥对数据做 SHA256 摘要后签名, 返回 DER 编码
func (e *Engine) SignData(index uint32, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("待签数据为空")
	}
	if len(data) > maxSignSize {
		return nil, fmt.Errorf("%w: %d", ErrOversizedData, len(data))
	}

	priv, err := e.DerivePrivateKey(index)
	if err != nil {
		return nil, err
	}
	digest := crypto_util.SHA256Bytes(data)
	sig := ecdsa.Sign(priv, digest[:])
	return sig.Serialize(), nil
}

// CleanupCache 淘汰过期地址缓存. 私钥缓存不设过期
func (e *Engine) CleanupCache() int {
	now := e.clock.Now()
	removed := 0
	for k, v := range e.addrCache {
		if now.Sub(v.cachedAt) >= addressTTL {
			delete(e.addrCache, k)
			removed++
		}
	}
	return removed
}

// Stats 引擎使用统计
type Stats struct {
	BasePath        string    `json:"base_path"`
	Network         string    `json:"network"`
	CachedKeys      int       `json:"cached_keys"`
	CachedAddresses int       `json:"cached_addresses"`
	UsageCount      uint64    `json:"usage_count"`
	CreatedAt       time.Time `json:"created_at"`
	LastUsed        time.Time `json:"last_used"`
}

func (e *Engine) Stats() Stats {
	return Stats{
		BasePath:        e.basePath,
		Network:         e.network.Name,
		CachedKeys:      len(e.keyCache),
		CachedAddresses: len(e.addrCache),
		UsageCount:      e.usageCount,
		CreatedAt:       e.createdAt,
		LastUsed:        e.lastUsed,
	}
}

// State 可序列化的引擎快照, 缓存不入快照
type State struct {
	Seed       []byte    `json:"seed"`
	BasePath   string    `json:"base_path"`
	Network    string    `json:"network"`
	UsageCount uint64    `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func (e *Engine) Snapshot() State {
	return State{
		Seed:       append([]byte(nil), e.seed...),
		BasePath:   e.basePath,
		Network:    e.network.Name,
		UsageCount: e.usageCount,
		CreatedAt:  e.createdAt,
	}
}

// FromState 从快照重建引擎, 缓存为空
func FromState(st State, clk clock.Clock) (*Engine, error) {
	e, err := New(st.Seed, st.BasePath, networkByName(st.Network), clk)
	if err != nil {
		return nil, err
	}
	e.usageCount = st.UsageCount
	if !st.CreatedAt.IsZero() {
		e.createdAt = st.CreatedAt
	}
	return e, nil
}

func networkByName(name string) *chaincfg.Params {
	switch name {
	case chaincfg.TestNet3Params.Name:
		return &chaincfg.TestNet3Params
	case chaincfg.RegressionNetParams.Name:
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// OwnerPath 为 owner 生成确定性的个人基路径 m/44'/223'/{h}'/0
func OwnerPath(owner model.Owner) string {
	digest := crypto_util.SHA256Bytes([]byte(owner))
	h := (uint32(digest[0])<<16 | uint32(digest[1])<<8 | uint32(digest[2])) % MaxIndex
	return fmt.Sprintf("m/44'/223'/%d'/0", h)
}
