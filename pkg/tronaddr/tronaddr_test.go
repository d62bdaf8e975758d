package tronaddr

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 黑洞地址: 20 字节全零，链上公认的烧毁地址
const (
	zeroAddr    = "T9yD14Nj9j7xAB4dbGeiX9h8unkKHxuWwb"
	zeroAddrHex = "410000000000000000000000000000000000000000"
)

func TestDecodeEncode(t *testing.T) {
	raw, err := Decode(zeroAddr)
	require.NoError(t, err)
	assert.Len(t, raw, 21)
	assert.Equal(t, byte(0x41), raw[0])

	back, err := Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, zeroAddr, back)
}

func TestHexRoundTrip(t *testing.T) {
	h, err := ToHex(zeroAddr)
	require.NoError(t, err)
	assert.Equal(t, zeroAddrHex, h)

	back, err := FromHex(zeroAddrHex)
	require.NoError(t, err)
	assert.Equal(t, zeroAddr, back)
}

func TestEVMRoundTrip(t *testing.T) {
	evm, err := ToEVM(zeroAddr)
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, evm)

	assert.Equal(t, zeroAddr, FromEVM(evm))
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want bool
	}{
		{"Valid mainnet address", zeroAddr, true},
		{"Valid USDT contract", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", true},
		{"Empty", "", false},
		{"Ethereum hex form", "0x0000000000000000000000000000000000000000", false},
		{"Wrong version prefix (BTC)", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", false},
		{"Corrupted checksum", "T9yD14Nj9j7xAB4dbGeiX9h8unkKHxuWwc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.addr))
		})
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	_, err := Encode([]byte{0x41, 0x00})
	assert.Error(t, err)

	// 前缀不是 0x41
	_, err = Encode(make([]byte, 21))
	assert.Error(t, err)
}
