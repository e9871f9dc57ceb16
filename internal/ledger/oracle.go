package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"
)

// HTTPOracle 通过 HTTP 访问的门限签名服务
// 路径段与摘要在线上以 hex 编码传输
type HTTPOracle struct {
	*httpClient
}

func NewHTTPOracle(baseURL string, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{httpClient: newHTTPClient(baseURL, timeout)}
}

func encodePath(path [][]byte) []string {
	out := make([]string, len(path))
	for i, seg := range path {
		out[i] = hex.EncodeToString(seg)
	}
	return out
}

type publicKeyRequest struct {
	KeyName string   `json:"key_name"`
	Path    []string `json:"path"`
}

type publicKeyResponse struct {
	PublicKey string `json:"public_key"` // SEC1 压缩公钥, hex
}

func (o *HTTPOracle) PublicKey(ctx context.Context, keyName string, derivationPath [][]byte) ([]byte, error) {
	req := publicKeyRequest{KeyName: keyName, Path: encodePath(derivationPath)}
	var resp publicKeyResponse
	if err := o.post(ctx, "/v1/public_key", req, &resp); err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(resp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	return key, nil
}

type signRequest struct {
	KeyName string   `json:"key_name"`
	Path    []string `json:"path"`
	Digest  string   `json:"digest"` // 32 字节摘要, hex
}

type signResponse struct {
	Signature string `json:"signature"` // hex
}

func (o *HTTPOracle) Sign(ctx context.Context, keyName string, derivationPath [][]byte, digest []byte) ([]byte, error) {
	req := signRequest{
		KeyName: keyName,
		Path:    encodePath(derivationPath),
		Digest:  hex.EncodeToString(digest),
	}
	var resp signResponse
	if err := o.post(ctx, "/v1/sign", req, &resp); err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(resp.Signature)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	return sig, nil
}
