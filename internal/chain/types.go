package chain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResourceKind 可代理的资源类型
type ResourceKind string

const (
	ResourceEnergy    ResourceKind = "ENERGY"
	ResourceBandwidth ResourceKind = "BANDWIDTH"
)

// StakeEntry 账户的一条质押记录 (frozenV2)
// Type 为空表示 Stake 1.0 的遗留质押，协议上归属带宽
type StakeEntry struct {
	Type      string
	AmountSun int64
}

// Account 链上账户状态
// GetAccount 对不存在的地址返回 (nil, nil)，即"未激活"
type Account struct {
	Address    string // Base58
	BalanceSun int64
	Frozen     []StakeEntry
	CreateTime time.Time
}

// AccountResource 账户的资源额度与全网质押参数
type AccountResource struct {
	FreeNetLimit int64
	FreeNetUsed  int64
	NetLimit     int64
	NetUsed      int64
	EnergyLimit  int64
	EnergyUsed   int64

	// 全网参数，用于 质押量 -> 资源额度 的换算
	TotalNetLimit     int64
	TotalNetWeight    int64
	TotalEnergyLimit  int64
	TotalEnergyWeight int64
}

// DelegatedResource 赞助账户已代理给某地址的质押量
type DelegatedResource struct {
	EnergySun    int64
	BandwidthSun int64
}

// ReceiptStatus 交易回执的三种终态判定
type ReceiptStatus int

const (
	ReceiptPending ReceiptStatus = iota // 尚未被节点索引
	ReceiptSuccess
	ReceiptFailed
)

// Receipt 交易回执
type Receipt struct {
	TxID        string
	BlockNumber int64
	Status      ReceiptStatus
	Message     string
}

// TransferEvent TRC20 Transfer 事件
type TransferEvent struct {
	TxID      string
	From      string // Base58
	To        string // Base58
	Amount    decimal.Decimal
	BlockTime time.Time
}
