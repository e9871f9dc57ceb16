package backup

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vault-core/internal/model"
)

// ErrNoSnapshot 存储中尚无任何快照
var ErrNoSnapshot = errors.New("backup: no snapshot found")

// Store 快照持久化后端
type Store interface {
	Save(ctx context.Context, rec *model.SnapshotRecord) error
	Load(ctx context.Context) (*model.SnapshotRecord, error)
}

// 单行快照的固定主键
const snapshotRowID = 1

// GormStore 把快照存入 vault_snapshots 表, 单行覆盖写
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Save(ctx context.Context, rec *model.SnapshotRecord) error {
	rec.ID = snapshotRowID
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(rec).Error
}

func (s *GormStore) Load(ctx context.Context) (*model.SnapshotRecord, error) {
	var rec model.SnapshotRecord
	err := s.db.WithContext(ctx).First(&rec, snapshotRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MemoryStore 内存快照存储, 测试与单机部署用
type MemoryStore struct {
	mu  sync.Mutex
	rec *model.SnapshotRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, rec *model.SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.ID = snapshotRowID
	cp.Payload = append([]byte(nil), rec.Payload...)
	s.rec = &cp
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*model.SnapshotRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, ErrNoSnapshot
	}
	cp := *s.rec
	cp.Payload = append([]byte(nil), s.rec.Payload...)
	return &cp, nil
}
