package sponsor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"sponsor-core/internal/chain"
	"sponsor-core/internal/ledger"
	"sponsor-core/pkg/logger"
	"sponsor-core/pkg/monitor"
	"sponsor-core/pkg/tronaddr"
	"sponsor-core/pkg/utils/lock"
)

// Outcome 一次赞助调用的整体结局
type Outcome string

const (
	OutcomeCompleted            Outcome = "completed"
	OutcomeAlreadySponsored     Outcome = "already_sponsored"
	OutcomeInsufficientCapacity Outcome = "insufficient_capacity"
	OutcomePartial              Outcome = "partial"
	OutcomeFailed               Outcome = "failed" // 一步都没有落到链上
)

var (
	// ErrAddressBusy 同一地址已有赞助在途 (按地址互斥)
	ErrAddressBusy = errors.New("该地址已有赞助操作在进行中")
	// ErrAccountBusy 赞助账户锁被其他实例持有
	ErrAccountBusy = errors.New("赞助账户正被其他实例操作")
)

// PartialError 部分成功: 链上变更不可回滚，err 里必须说清楚哪步断的
type PartialError struct {
	Completed []string // 已确认的步骤
	FailedAt  string   // 断掉的步骤
	Cause     error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("赞助部分完成 (已完成 %v, 断于 %s): %v", e.Completed, e.FailedAt, e.Cause)
}

func (e *PartialError) Unwrap() error { return e.Cause }

// ErrConfirmTimeout 广播成功但在限定轮询内没有等到终态回执
// 交易之后仍可能确认，和链上拒绝是两回事
var ErrConfirmTimeout = errors.New("确认超时")

// ErrRejected 链上明确拒绝，交易无效果，可以安全地从头重试
var ErrRejected = errors.New("链上拒绝")

// Result 每一步的 txid 单独可见，调用方可以据此续作缺失步骤
type Result struct {
	Address      string
	ActivationTx string
	EnergyTx     string
	BandwidthTx  string
	Outcome      Outcome
	Reason       string // InsufficientCapacity 时的缺口描述
}

// Orchestrator 把一个目标地址推进到可收款状态:
// 激活 -> 能量代理 -> 带宽代理，每步之前过容量闸，之后等回执
//
// 所有花费都出自同一个赞助账户，check+spend 必须在单写者域内完成:
// 进程内 mutex + 跨实例 redis 锁，两层都覆盖整个调用
type Orchestrator struct {
	client chain.Client
	ledger *ledger.Ledger
	waiter *chain.Waiter
	dlock  lock.DistributedLock

	account string // 赞助账户 Base58
	sizing  Sizing

	mu sync.Mutex
}

func NewOrchestrator(client chain.Client, lg *ledger.Ledger, waiter *chain.Waiter, dlock lock.DistributedLock, account string, sizing Sizing) *Orchestrator {
	return &Orchestrator{
		client:  client,
		ledger:  lg,
		waiter:  waiter,
		dlock:   dlock,
		account: account,
		sizing:  sizing,
	}
}

// Sponsor 赞助目标地址 durationDays 天的使用量
// 容量不足时零链上调用直接返回；部分失败不回滚，重跑只补缺失步骤
func (o *Orchestrator) Sponsor(ctx context.Context, address string, days int) (*Result, error) {
	if !tronaddr.IsValid(address) {
		return &Result{Address: address, Outcome: OutcomeFailed}, fmt.Errorf("非法地址: %s", address)
	}

	// 1. 地址级互斥: 同一地址不允许并发赞助
	addrKey := "sponsor:addr:" + address
	locked, err := o.dlock.Acquire(ctx, addrKey, 10*time.Minute)
	if err != nil {
		return &Result{Address: address, Outcome: OutcomeFailed}, err
	}
	if !locked {
		return &Result{Address: address, Outcome: OutcomeFailed}, ErrAddressBusy
	}
	defer o.dlock.Release(ctx, addrKey)

	// 2. 账户级单写者域: 覆盖 检查+花费 全程
	o.mu.Lock()
	defer o.mu.Unlock()

	acctLocked, err := o.dlock.Acquire(ctx, "sponsor:account:"+o.account, 2*time.Minute)
	if err != nil {
		return &Result{Address: address, Outcome: OutcomeFailed}, err
	}
	if !acctLocked {
		return &Result{Address: address, Outcome: OutcomeFailed}, ErrAccountBusy
	}
	defer o.dlock.Release(ctx, "sponsor:account:"+o.account)

	result, err := o.sponsorLocked(ctx, address, days)
	monitor.Business.SponsorshipTotal.WithLabelValues(string(result.Outcome)).Inc()
	return result, err
}

func (o *Orchestrator) sponsorLocked(ctx context.Context, address string, days int) (*Result, error) {
	result := &Result{Address: address}
	plan := BuildPlan(address, days, o.sizing)

	// 3. 激活判定: 账户查不到 = 未激活
	acct, err := o.client.GetAccount(ctx, address)
	if err != nil {
		result.Outcome = OutcomeFailed
		return result, fmt.Errorf("激活状态查询失败: %w", err)
	}
	needActivation := acct == nil

	// 已代理量决定续作点: 满足的步骤直接跳过，不重复花费
	delegated, err := o.client.GetDelegatedResource(ctx, o.account, address)
	if err != nil {
		result.Outcome = OutcomeFailed
		return result, fmt.Errorf("已代理量查询失败: %w", err)
	}
	needEnergy := delegated.EnergySun < plan.EnergySun
	needBandwidth := delegated.BandwidthSun < plan.BandwidthSun

	if !needActivation && !needEnergy && !needBandwidth {
		result.Outcome = OutcomeAlreadySponsored
		return result, nil
	}

	// 4. 容量闸: 不通过则零链上调用
	verdict, err := o.ledger.CanSponsor(ctx, plan.TxCount)
	if err != nil {
		result.Outcome = OutcomeFailed
		return result, err
	}
	if !verdict.OK {
		result.Outcome = OutcomeInsufficientCapacity
		result.Reason = verdict.Reason
		logger.Warn("[Sponsor] 容量不足，放弃赞助",
			zap.String("address", address), zap.String("reason", verdict.Reason))
		return result, nil
	}
	if needActivation {
		verdict, err = o.ledger.CanActivate(ctx)
		if err != nil {
			result.Outcome = OutcomeFailed
			return result, err
		}
		if !verdict.OK {
			result.Outcome = OutcomeInsufficientCapacity
			result.Reason = verdict.Reason
			return result, nil
		}
	}

	var completed []string

	// 5. 激活转账，失败则一笔代理都不发
	if needActivation {
		txid, err := o.runStep(ctx, "activation", func() (string, error) {
			return o.client.TransferTRX(ctx, o.account, address, plan.ActivationSun)
		})
		if err != nil {
			if txid != "" && !errors.Is(err, ErrRejected) {
				// 已广播但没等到回执: 不能当失败处理，也绝不能继续代理
				result.ActivationTx = txid
				result.Outcome = OutcomePartial
				return result, &PartialError{Completed: completed, FailedAt: "activation", Cause: err}
			}
			result.Outcome = OutcomeFailed
			return result, err
		}
		result.ActivationTx = txid
		completed = append(completed, "activation")
	}

	// 6. 能量代理
	if needEnergy {
		txid, err := o.runStep(ctx, "energy", func() (string, error) {
			return o.client.DelegateResource(ctx, o.account, address, plan.EnergySun, chain.ResourceEnergy)
		})
		if err != nil {
			result.EnergyTx = txid
			if len(completed) > 0 || (txid != "" && !errors.Is(err, ErrRejected)) {
				result.Outcome = OutcomePartial
				return result, &PartialError{Completed: completed, FailedAt: "energy", Cause: err}
			}
			result.Outcome = OutcomeFailed
			return result, err
		}
		result.EnergyTx = txid
		completed = append(completed, "energy")
	}

	// 7. 带宽代理
	if needBandwidth {
		txid, err := o.runStep(ctx, "bandwidth", func() (string, error) {
			return o.client.DelegateResource(ctx, o.account, address, plan.BandwidthSun, chain.ResourceBandwidth)
		})
		if err != nil {
			result.BandwidthTx = txid
			if len(completed) > 0 || (txid != "" && !errors.Is(err, ErrRejected)) {
				result.Outcome = OutcomePartial
				return result, &PartialError{Completed: completed, FailedAt: "bandwidth", Cause: err}
			}
			result.Outcome = OutcomeFailed
			return result, err
		}
		result.BandwidthTx = txid
		completed = append(completed, "bandwidth")
	}

	result.Outcome = OutcomeCompleted
	logger.Info("[Sponsor] 赞助完成",
		zap.String("address", address),
		zap.String("activation_tx", result.ActivationTx),
		zap.String("energy_tx", result.EnergyTx),
		zap.String("bandwidth_tx", result.BandwidthTx))
	return result, nil
}

// runStep 广播一步并等待回执
// 返回 (txid, err): txid 非空而 err 非空 = 已广播但未确认/被拒
func (o *Orchestrator) runStep(ctx context.Context, step string, broadcast func() (string, error)) (string, error) {
	txid, err := broadcast()
	if err != nil {
		monitor.Business.SponsorshipStepTotal.WithLabelValues(step, "broadcast_error").Inc()
		return "", fmt.Errorf("%s 广播失败: %w", step, err)
	}

	timer := prometheus.NewTimer(monitor.Business.ConfirmationDuration.WithLabelValues(step))
	outcome, err := o.waiter.Await(ctx, txid)
	timer.ObserveDuration()

	if err != nil {
		// ctx 取消
		monitor.Business.SponsorshipStepTotal.WithLabelValues(step, "canceled").Inc()
		return txid, err
	}

	switch outcome {
	case chain.WaitConfirmed:
		monitor.Business.SponsorshipStepTotal.WithLabelValues(step, "confirmed").Inc()
		logger.Info("[Sponsor] 步骤确认", zap.String("step", step), zap.String("txid", txid))
		return txid, nil
	case chain.WaitRejected:
		monitor.Business.SponsorshipStepTotal.WithLabelValues(step, "rejected").Inc()
		return txid, fmt.Errorf("%s (txid=%s): %w", step, txid, ErrRejected)
	default:
		monitor.Business.SponsorshipStepTotal.WithLabelValues(step, "timeout").Inc()
		return txid, fmt.Errorf("%s (txid=%s): %w", step, txid, ErrConfirmTimeout)
	}
}
