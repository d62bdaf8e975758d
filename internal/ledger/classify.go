package ledger

import (
	"go.uber.org/zap"

	"sponsor-core/internal/chain"
	"sponsor-core/pkg/logger"
)

// StakeClass 质押条目的资源归属
type StakeClass int

const (
	StakeEnergy StakeClass = iota
	StakeBandwidth
	StakeGovernance   // 投票权质押，不可代理
	StakeUnclassified // 未知标签，不计入任何可代理池
)

// StakeBreakdown 按资源归属汇总后的质押量 (sun)
type StakeBreakdown struct {
	EnergySun       int64
	BandwidthSun    int64
	GovernanceSun   int64
	UnclassifiedSun int64
}

// DelegableSun 可代理的质押总量 (不含投票权与未知标签)
func (b StakeBreakdown) DelegableSun() int64 {
	return b.EnergySun + b.BandwidthSun
}

// classifyEntry 单条质押的归属判定
// 标签为空的是 Stake 1.0 遗留质押，按协议惯例归属带宽，绝不丢弃
// 未知的非空标签不猜测归属，归入 Unclassified 并告警
func classifyEntry(e chain.StakeEntry) StakeClass {
	switch e.Type {
	case string(chain.ResourceEnergy):
		return StakeEnergy
	case string(chain.ResourceBandwidth), "":
		return StakeBandwidth
	case "TRON_POWER":
		return StakeGovernance
	default:
		return StakeUnclassified
	}
}

// ClassifyStakes 汇总账户的全部质押条目
func ClassifyStakes(entries []chain.StakeEntry) StakeBreakdown {
	var b StakeBreakdown
	for _, e := range entries {
		switch classifyEntry(e) {
		case StakeEnergy:
			b.EnergySun += e.AmountSun
		case StakeBandwidth:
			b.BandwidthSun += e.AmountSun
		case StakeGovernance:
			b.GovernanceSun += e.AmountSun
		case StakeUnclassified:
			b.UnclassifiedSun += e.AmountSun
			logger.Warn("[Ledger] 未知的质押类型，不计入可代理池",
				zap.String("type", e.Type), zap.Int64("amount_sun", e.AmountSun))
		}
	}
	return b
}
