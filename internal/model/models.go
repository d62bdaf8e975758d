package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 请求状态机: pending -> activating -> paid -> swept, 或 pending -> expired
// 状态只能向前走，唯一例外是赞助失败后的 activating -> pending 回退 (带重试上限)
const (
	StatusPending    = "pending"
	StatusActivating = "activating"
	StatusPaid       = "paid"
	StatusSwept      = "swept"
	StatusExpired    = "expired"
)

// PaymentRequest 支付请求 (发票)
// 表结构归外部开票系统所有，本服务只读取下列字段并推进状态
type PaymentRequest struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Address        string          `gorm:"type:varchar(64);not null;index" json:"address"`                       // 收款地址 (Base58)
	RequiredAmount decimal.Decimal `gorm:"type:decimal(32,6);not null" json:"required_amount"`                   // 应收 USDT
	Status         string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`      // 见上方状态机
	GroupID        uint64          `gorm:"not null;index" json:"group_id"`                                       // 所属卖家/群组
	SponsorRetries int             `gorm:"not null;default:0" json:"sponsor_retries"`                            // activating 回退次数
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TransferRecord 链上入账流水，只追加不修改
// 同一笔链上交易只允许存在一行 (tx_id 唯一索引兜底)
type TransferRecord struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID   uint64          `gorm:"not null;index" json:"request_id"`
	FromAddress string          `gorm:"type:varchar(64);not null" json:"from_address"`
	Amount      decimal.Decimal `gorm:"type:decimal(32,6);not null" json:"amount"`
	TxID        string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"tx_id"`
	BlockTime   time.Time       `json:"block_time"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (PaymentRequest) TableName() string {
	return "payment_requests"
}

func (TransferRecord) TableName() string {
	return "transfer_records"
}
