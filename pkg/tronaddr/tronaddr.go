package tronaddr

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
)

// TRON 地址 = 0x41 + 20 字节以太坊格式地址, 外加 Base58Check 编码
// 例如: T9yD14Nj9j7xAB4dbGeiX9h8unkKHxuWwb
const prefixMainnet = 0x41

// Decode 将 Base58 地址解码为 21 字节 (含 0x41 前缀)
func Decode(addr string) ([]byte, error) {
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return nil, fmt.Errorf("base58 解码失败: %w", err)
	}
	if version != prefixMainnet {
		return nil, fmt.Errorf("地址前缀错误: 0x%02x", version)
	}
	if len(payload) != 20 {
		return nil, fmt.Errorf("地址长度错误: %d", len(payload))
	}
	return append([]byte{version}, payload...), nil
}

// Encode 将 21 字节 (0x41 开头) 编码为 Base58 地址
func Encode(raw []byte) (string, error) {
	if len(raw) != 21 || raw[0] != prefixMainnet {
		return "", fmt.Errorf("非法的原始地址: %s", hex.EncodeToString(raw))
	}
	return base58.CheckEncode(raw[1:], prefixMainnet), nil
}

// ToHex 转换为节点 API 使用的十六进制形式 ("41....")
func ToHex(addr string) (string, error) {
	raw, err := Decode(addr)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// FromHex 从节点 API 返回的十六进制形式还原 Base58 地址
func FromHex(h string) (string, error) {
	raw, err := hex.DecodeString(h)
	if err != nil {
		return "", fmt.Errorf("hex 解码失败: %w", err)
	}
	return Encode(raw)
}

// ToEVM 转换为 20 字节以太坊格式地址 (用于 TRC20 ABI 参数)
func ToEVM(addr string) (common.Address, error) {
	raw, err := Decode(addr)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(raw[1:]), nil
}

// FromEVM 从 20 字节以太坊格式地址还原 Base58 地址
func FromEVM(a common.Address) string {
	return base58.CheckEncode(a.Bytes(), prefixMainnet)
}

// IsValid 校验 Base58 地址
func IsValid(addr string) bool {
	_, err := Decode(addr)
	return err == nil
}
