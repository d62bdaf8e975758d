package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"sponsor-core/pkg/tronaddr"
)

// TRC20 与 ERC20 的 ABI 完全兼容，参数编码直接复用 go-ethereum
var (
	addressTy, _ = abi.NewType("address", "", nil)
	uint256Ty, _ = abi.NewType("uint256", "", nil)

	balanceOfArgs = abi.Arguments{{Type: addressTy}}
	transferArgs  = abi.Arguments{{Type: addressTy}, {Type: uint256Ty}}
)

// packBalanceOf 编码 balanceOf(address) 的参数段 (不含 selector)
func packBalanceOf(holder string) (string, error) {
	evm, err := tronaddr.ToEVM(holder)
	if err != nil {
		return "", err
	}
	data, err := balanceOfArgs.Pack(evm)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(data), nil
}

// packTransfer 编码 transfer(address,uint256) 的参数段
func packTransfer(to string, amount *big.Int) (string, error) {
	evm, err := tronaddr.ToEVM(to)
	if err != nil {
		return "", err
	}
	data, err := transferArgs.Pack(evm, amount)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(data), nil
}

// unpackUint256 解码 constant_result 里的 32 字节整数
func unpackUint256(h string) (*big.Int, error) {
	h = strings.TrimPrefix(h, "0x")
	data, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("constant_result 解码失败: %w", err)
	}
	if len(data) != 32 {
		return nil, fmt.Errorf("constant_result 长度错误: %d", len(data))
	}
	return new(big.Int).SetBytes(data), nil
}
