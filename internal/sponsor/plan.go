package sponsor

import (
	"github.com/shopspring/decimal"
)

// Sizing 计划定价参数，全部来自配置
type Sizing struct {
	ActivationSun   int64
	EnergyPerTx     int64
	BandwidthPerTx  int64
	DailyTxEstimate int64
	MinDelegateSun  int64
	// 1 sun 质押可得的资源量估算 (随全网质押量浮动，运营侧定期校准)
	EnergyPerSun    decimal.Decimal
	BandwidthPerSun decimal.Decimal
}

// Plan 一次赞助要发生的全部金额
type Plan struct {
	Address       string
	Days          int
	TxCount       int64 // 预计承载的交易笔数
	ActivationSun int64
	EnergySun     int64 // 能量代理的质押量
	BandwidthSun  int64 // 带宽代理的质押量
}

// BuildPlan 按时长估算质押量: 天数 × 每日笔数 × 单笔成本, 再按
// 质押/资源 比率换算成 sun，下限保护避免代理出无意义的小额
func BuildPlan(address string, days int, s Sizing) Plan {
	if days < 1 {
		days = 1
	}
	txCount := int64(days) * s.DailyTxEstimate

	p := Plan{
		Address:       address,
		Days:          days,
		TxCount:       txCount,
		ActivationSun: s.ActivationSun,
		EnergySun:     stakeFor(txCount*s.EnergyPerTx, s.EnergyPerSun, s.MinDelegateSun),
		BandwidthSun:  stakeFor(txCount*s.BandwidthPerTx, s.BandwidthPerSun, s.MinDelegateSun),
	}
	return p
}

// stakeFor 资源需求量 -> 质押量 (sun)，向上取整并套用下限
func stakeFor(resourceNeed int64, perSun decimal.Decimal, minSun int64) int64 {
	if resourceNeed <= 0 || !perSun.IsPositive() {
		return minSun
	}
	sun := decimal.NewFromInt(resourceNeed).Div(perSun).Ceil().IntPart()
	if sun < minSun {
		return minSun
	}
	return sun
}
