package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sponsor-core/internal/chain"
	"sponsor-core/pkg/logger"
)

// ErrUnavailable 底层查询失败时的显式结果
// 绝不返回零值快照，零值会被误判成"容量不足"
var ErrUnavailable = errors.New("resource ledger unavailable")

const sunPerTRX = 1_000_000

// Costs 每笔操作的资源/余额开销，全部来自配置
type Costs struct {
	EnergyPerTx    int64
	BandwidthPerTx int64
	ActivationSun  int64
}

// Validate 三项开销都是容量计算的除数，必须为正
// 配置错误在启动时拒绝，不能等到第一次容量计算才除零
func (c Costs) Validate() error {
	if c.EnergyPerTx <= 0 {
		return fmt.Errorf("energy_per_tx 必须为正: %d", c.EnergyPerTx)
	}
	if c.BandwidthPerTx <= 0 {
		return fmt.Errorf("bandwidth_per_tx 必须为正: %d", c.BandwidthPerTx)
	}
	if c.ActivationSun <= 0 {
		return fmt.Errorf("activation_sun 必须为正: %d", c.ActivationSun)
	}
	return nil
}

// ResourceState 单项资源的额度视图
type ResourceState struct {
	Limit     int64
	Used      int64
	Available int64 // max(0, Limit-Used), 带宽另加免费额度
}

// Snapshot 赞助账户的资源快照 (按需计算，不落库)
type Snapshot struct {
	BalanceSun int64
	Energy     ResourceState
	Bandwidth  ResourceState
	Stakes     StakeBreakdown
	Efficiency EfficiencyReport
	Taken      time.Time
}

// EfficiencyReport 观察额度 / 质押量理论额度 的比值
// 仅作诊断: 比值明显小于 1 说明有质押卡在迁移或未生效，不影响容量判定
type EfficiencyReport struct {
	Energy    decimal.Decimal
	Bandwidth decimal.Decimal
}

// Verdict 容量判定结果
type Verdict struct {
	OK       bool
	Reason   string
	Resource string // 短缺的资源名 ("energy"/"bandwidth"/"balance")
	Deficit  int64  // 缺口数量
}

// Capacity 当日可赞助能力
type Capacity struct {
	TxCapacity         int64
	ActivationCapacity int64
	Bottleneck         string // "energy" / "bandwidth" / "balance"
}

// Ledger 赞助账户的资源账本
type Ledger struct {
	client  chain.Client
	account string // 赞助账户 Base58 地址
	costs   Costs
}

func New(client chain.Client, account string, costs Costs) *Ledger {
	return &Ledger{client: client, account: account, costs: costs}
}

func available(limit, used int64) int64 {
	if d := limit - used; d > 0 {
		return d
	}
	return 0
}

// Snapshot 查询账户与资源状态
// 任何一个底层查询失败都返回 ErrUnavailable，不返回部分快照
func (l *Ledger) Snapshot(ctx context.Context) (*Snapshot, error) {
	acct, err := l.client.GetAccount(ctx, l.account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: 赞助账户 %s 不存在", ErrUnavailable, l.account)
	}

	res, err := l.client.GetAccountResource(ctx, l.account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	stakes := ClassifyStakes(acct.Frozen)

	snap := &Snapshot{
		BalanceSun: acct.BalanceSun,
		Energy: ResourceState{
			Limit:     res.EnergyLimit,
			Used:      res.EnergyUsed,
			Available: available(res.EnergyLimit, res.EnergyUsed),
		},
		Bandwidth: ResourceState{
			Limit: res.NetLimit,
			Used:  res.NetUsed,
			// 质押带宽 + 每日免费带宽
			Available: available(res.NetLimit, res.NetUsed) + available(res.FreeNetLimit, res.FreeNetUsed),
		},
		Stakes:     stakes,
		Efficiency: efficiency(res, stakes),
		Taken:      time.Now(),
	}
	return snap, nil
}

// efficiency 观察额度与质押量理论额度的比值
func efficiency(res *chain.AccountResource, stakes StakeBreakdown) EfficiencyReport {
	report := EfficiencyReport{Energy: decimal.NewFromInt(1), Bandwidth: decimal.NewFromInt(1)}

	if stakes.EnergySun > 0 && res.TotalEnergyWeight > 0 {
		theoretical := decimal.NewFromInt(stakes.EnergySun).
			Div(decimal.NewFromInt(sunPerTRX)).
			Mul(decimal.NewFromInt(res.TotalEnergyLimit)).
			Div(decimal.NewFromInt(res.TotalEnergyWeight))
		if theoretical.IsPositive() {
			report.Energy = decimal.NewFromInt(res.EnergyLimit).Div(theoretical).Round(4)
		}
	}
	if stakes.BandwidthSun > 0 && res.TotalNetWeight > 0 {
		theoretical := decimal.NewFromInt(stakes.BandwidthSun).
			Div(decimal.NewFromInt(sunPerTRX)).
			Mul(decimal.NewFromInt(res.TotalNetLimit)).
			Div(decimal.NewFromInt(res.TotalNetWeight))
		if theoretical.IsPositive() {
			report.Bandwidth = decimal.NewFromInt(res.NetLimit).Div(theoretical).Round(4)
		}
	}
	return report
}

// CanSponsor 判定能否承担 txCount 笔转账的能量与带宽
// 每次链上花费前必须先过这道闸；不通过则一次链上调用都不会发生
func (l *Ledger) CanSponsor(ctx context.Context, txCount int64) (Verdict, error) {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return Verdict{OK: false, Reason: "ledger unavailable"}, err
	}
	return l.verdictFor(snap, txCount), nil
}

func (l *Ledger) verdictFor(snap *Snapshot, txCount int64) Verdict {
	needEnergy := txCount * l.costs.EnergyPerTx
	needBandwidth := txCount * l.costs.BandwidthPerTx

	if snap.Energy.Available < needEnergy {
		return Verdict{
			OK:       false,
			Reason:   fmt.Sprintf("能量不足: 需要 %d, 可用 %d", needEnergy, snap.Energy.Available),
			Resource: "energy",
			Deficit:  needEnergy - snap.Energy.Available,
		}
	}
	if snap.Bandwidth.Available < needBandwidth {
		return Verdict{
			OK:       false,
			Reason:   fmt.Sprintf("带宽不足: 需要 %d, 可用 %d", needBandwidth, snap.Bandwidth.Available),
			Resource: "bandwidth",
			Deficit:  needBandwidth - snap.Bandwidth.Available,
		}
	}
	return Verdict{OK: true}
}

// CanActivate 判定余额能否承担一次账户激活转账
func (l *Ledger) CanActivate(ctx context.Context) (Verdict, error) {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return Verdict{OK: false, Reason: "ledger unavailable"}, err
	}
	if snap.BalanceSun < l.costs.ActivationSun {
		return Verdict{
			OK:       false,
			Reason:   fmt.Sprintf("余额不足以激活账户: 需要 %d sun, 现有 %d sun", l.costs.ActivationSun, snap.BalanceSun),
			Resource: "balance",
			Deficit:  l.costs.ActivationSun - snap.BalanceSun,
		}, nil
	}
	return Verdict{OK: true}, nil
}

// DailyCapacity 计算当前资源能支撑的交易笔数与可激活账户数
func (l *Ledger) DailyCapacity(ctx context.Context) (*Capacity, error) {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return l.capacityFor(snap), nil
}

func (l *Ledger) capacityFor(snap *Snapshot) *Capacity {
	energyTx := snap.Energy.Available / l.costs.EnergyPerTx
	bandwidthTx := snap.Bandwidth.Available / l.costs.BandwidthPerTx

	c := &Capacity{ActivationCapacity: snap.BalanceSun / l.costs.ActivationSun}
	if energyTx <= bandwidthTx {
		c.TxCapacity = energyTx
		c.Bottleneck = "energy"
	} else {
		c.TxCapacity = bandwidthTx
		c.Bottleneck = "bandwidth"
	}
	// 激活能力比交易能力更紧时，瓶颈是余额
	if c.ActivationCapacity < c.TxCapacity {
		c.Bottleneck = "balance"
	}

	logger.Debug("[Ledger] 容量计算",
		zap.Int64("energy_tx", energyTx),
		zap.Int64("bandwidth_tx", bandwidthTx),
		zap.Int64("activation", c.ActivationCapacity),
		zap.String("bottleneck", c.Bottleneck))
	return c
}
