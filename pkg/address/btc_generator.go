package address

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// BTCAddressType 支持的比特币地址类型
type BTCAddressType int

const (
	P2PKH BTCAddressType = iota // Legacy, "1..."
	P2SH                        // P2SH 包裹的 SegWit, "3..."
	P2WPKH                      // Native SegWit, "bc1..."
)

func (t BTCAddressType) String() string {
	switch t {
	case P2PKH:
		return "p2pkh"
	case P2SH:
		return "p2sh"
	case P2WPKH:
		return "p2wpkh"
	default:
		return "unknown"
	}
}

// BTCGenerator 比特币地址生成器
type BTCGenerator struct {
	network *chaincfg.Params
}

func NewBTCGenerator(network *chaincfg.Params) *BTCGenerator {
	return &BTCGenerator{network: network}
}

// PubKeyToAddress 将公钥字节 (压缩格式) 转换为 P2PKH 地址
func (g *BTCGenerator) PubKeyToAddress(pubKeyBytes []byte) (string, error) {
	addr, err := btcutil.NewAddressPubKey(pubKeyBytes, g.network)
	if err != nil {
		return "", err
	}
	return addr.AddressPubKeyHash().EncodeAddress(), nil
}

// PubKeyToTypedAddress 按指定类型生成地址
func (g *BTCGenerator) PubKeyToTypedAddress(pubKeyBytes []byte, typ BTCAddressType) (string, error) {
	switch typ {
	case P2PKH:
		return g.PubKeyToAddress(pubKeyBytes)

	case P2WPKH:
		addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubKeyBytes), g.network)
		if err != nil {
			return "", err
		}
		return addr.EncodeAddress(), nil

	case P2SH:
		// P2SH-P2WPKH: 把 witness program 包进脚本哈希
		wpkh, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubKeyBytes), g.network)
		if err != nil {
			return "", err
		}
		script, err := txscript.PayToAddrScript(wpkh)
		if err != nil {
			return "", err
		}
		addr, err := btcutil.NewAddressScriptHash(script, g.network)
		if err != nil {
			return "", err
		}
		return addr.EncodeAddress(), nil

	default:
		return "", fmt.Errorf("不支持的地址类型: %d", typ)
	}
}

// Validate 校验地址是否属于当前网络
func (g *BTCGenerator) Validate(addr string) error {
	decoded, err := btcutil.DecodeAddress(addr, g.network)
	if err != nil {
		return fmt.Errorf("无效的比特币地址: %w", err)
	}
	if !decoded.IsForNet(g.network) {
		return fmt.Errorf("地址不属于网络 %s", g.network.Name)
	}
	return nil
}
