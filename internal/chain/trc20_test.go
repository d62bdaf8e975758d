package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zeroAddr = "T9yD14Nj9j7xAB4dbGeiX9h8unkKHxuWwb" // 20 字节全零地址

func TestPackBalanceOf(t *testing.T) {
	data, err := packBalanceOf(zeroAddr)
	require.NoError(t, err)
	// address 左填充到 32 字节
	assert.Equal(t, strings.Repeat("0", 64), data)

	_, err = packBalanceOf("not-an-address")
	assert.Error(t, err)
}

func TestPackTransfer(t *testing.T) {
	data, err := packTransfer(zeroAddr, big.NewInt(255))
	require.NoError(t, err)
	require.Len(t, data, 128)
	assert.Equal(t, strings.Repeat("0", 64), data[:64])
	assert.Equal(t, strings.Repeat("0", 62)+"ff", data[64:])
}

func TestUnpackUint256(t *testing.T) {
	v, err := unpackUint256(strings.Repeat("0", 62) + "2a")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int64())

	_, err = unpackUint256("abcd")
	assert.Error(t, err, "长度不是 32 字节要报错")

	_, err = unpackUint256("zz")
	assert.Error(t, err)
}
