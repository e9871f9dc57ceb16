package model

import "time"

// SnapshotRecord 备份快照持久化行
// 只保留单行 (ID=1), 每次备份整体覆盖
type SnapshotRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Version   int       `gorm:"not null" json:"version"`
	Payload   []byte    `gorm:"type:bytea;not null" json:"-"`
	Checksum  string    `gorm:"type:varchar(64);not null" json:"checksum"` // blake3 hex
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SnapshotRecord) TableName() string {
	return "vault_snapshots"
}

// OutboxMessage 本地消息表 (Transactional Outbox)
// 事件先落库, 再由发布方异步投递到 MQ
type OutboxMessage struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Topic     string    `gorm:"type:varchar(255);not null" json:"topic"`
	Payload   []byte    `gorm:"type:text;not null" json:"payload"`
	Status    string    `gorm:"type:varchar(50);not null;default:'PENDING';index" json:"status"` // PENDING, SENT, FAILED
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
