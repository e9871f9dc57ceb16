package mq

import "context"

// Producer 生产者接口
type Producer interface {
	// Publish 发送消息
	// key:用于分区排序 (Partition Key), 例如 Owner. 传空字符串则随机分区.
	Publish(ctx context.Context, topic string, key string, payload []byte) error
}
