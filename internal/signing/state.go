package signing

import (
	"time"

	"vault-core/internal/model"
)

// State 可序列化的签名服务快照
type State struct {
	KeyName       string                    `json:"key_name"`
	TotalRequests uint64                    `json:"total_requests"`
	Paths         map[model.Owner][][]byte  `json:"paths"`
	PublicKeys    map[string]PublicKeyEntry `json:"public_keys"`
}

type PublicKeyEntry struct {
	Key      []byte    `json:"key"`
	CachedAt time.Time `json:"cached_at"`
}

// Snapshot 导出当前状态供备份
func (s *Service) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		KeyName:       s.keyName,
		TotalRequests: s.totalRequests,
		Paths:         make(map[model.Owner][][]byte, len(s.paths)),
		PublicKeys:    make(map[string]PublicKeyEntry, len(s.pubKeys)),
	}
	for owner, path := range s.paths {
		cp := make([][]byte, len(path))
		for i, seg := range path {
			cp[i] = append([]byte(nil), seg...)
		}
		st.Paths[owner] = cp
	}
	for k, v := range s.pubKeys {
		st.PublicKeys[k] = PublicKeyEntry{Key: append([]byte(nil), v.key...), CachedAt: v.cachedAt}
	}
	return st
}

// Restore 用快照覆盖当前状态
// 限流窗口不入快照, 恢复后从零开始计数
func (s *Service) Restore(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.KeyName != "" {
		s.keyName = st.KeyName
	}
	s.totalRequests = st.TotalRequests
	s.paths = make(map[model.Owner][][]byte, len(st.Paths))
	for owner, path := range st.Paths {
		cp := make([][]byte, len(path))
		for i, seg := range path {
			cp[i] = append([]byte(nil), seg...)
		}
		s.paths[owner] = cp
	}
	s.pubKeys = make(map[string]cachedPublicKey, len(st.PublicKeys))
	for k, v := range st.PublicKeys {
		s.pubKeys[k] = cachedPublicKey{key: append([]byte(nil), v.Key...), cachedAt: v.CachedAt}
	}
	s.limiter.Reset()
}
