// Package signing 封装对门限签名服务的访问:
// 公钥缓存、请求限流、消息校验, 以及可备份的内部状态。
package signing

import "context"

// Oracle 门限签名服务。密钥材料不在本进程内,
// 公钥与签名都通过该接口远程获取。
type Oracle interface {
	// PublicKey 获取 keyName 在给定派生路径下的 SEC1 压缩公钥
	PublicKey(ctx context.Context, keyName string, derivationPath [][]byte) ([]byte, error)
	// Sign 对 32 字节摘要出具签名
	Sign(ctx context.Context, keyName string, derivationPath [][]byte, digest []byte) ([]byte, error)
}
