package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sponsor-core/internal/chain"
	"sponsor-core/internal/model"
	"sponsor-core/internal/sponsor"
	"sponsor-core/internal/store"
	"sponsor-core/pkg/logger"
	"sponsor-core/pkg/monitor"
)

// PaymentMonitor 支付监控主循环
// 每个周期扫描 pending 请求: 查入账 -> 查激活 -> 按需赞助 -> 标记 paid
// 正确性依赖最终检测，不要求实时; 周期由配置决定
type PaymentMonitor struct {
	store        store.RequestStore
	client       chain.Client
	orchestrator *sponsor.Orchestrator
	alerter      *Alerter

	usdtContract string
	interval     time.Duration
	batchSize    int
	sponsorDays  int
}

type MonitorOptions struct {
	USDTContract string
	Interval     time.Duration
	BatchSize    int
	SponsorDays  int
}

func NewPaymentMonitor(st store.RequestStore, client chain.Client, orch *sponsor.Orchestrator, alerter *Alerter, opts MonitorOptions) *PaymentMonitor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &PaymentMonitor{
		store:        st,
		client:       client,
		orchestrator: orch,
		alerter:      alerter,
		usdtContract: opts.USDTContract,
		interval:     opts.Interval,
		batchSize:    opts.BatchSize,
		sponsorDays:  opts.SponsorDays,
	}
}

// Start 启动扫描循环
func (m *PaymentMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	logger.Info("[Monitor] 启动支付监控", zap.Duration("interval", m.interval))

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("[Monitor] 收到退出信号，停止扫描")
				return
			case <-ticker.C:
				m.Scan(ctx)
			}
		}
	}()
}

// Scan 单轮扫描: 逐个处理 pending 请求
// 扫描本身单线程; 所有赞助花费经 Orchestrator 内的单写者域串行
func (m *PaymentMonitor) Scan(ctx context.Context) {
	reqs, err := m.store.ListByStatus(ctx, model.StatusPending, m.batchSize)
	if err != nil {
		logger.Error("[Monitor] 查询 pending 请求失败", zap.Error(err))
		return
	}

	for i := range reqs {
		m.processRequest(ctx, &reqs[i])
	}

	m.refreshStatusGauge(ctx)
}

// processRequest 推进单个 pending 请求
func (m *PaymentMonitor) processRequest(ctx context.Context, req *model.PaymentRequest) {
	// 1. 查稳定币入账
	balance, err := m.client.TRC20Balance(ctx, m.usdtContract, req.Address)
	if err != nil {
		// 瞬时链查询失败: 本轮跳过，下轮重试
		logger.Warn("[Monitor] 余额查询失败",
			zap.Uint64("request_id", req.ID), zap.String("address", req.Address), zap.Error(err))
		return
	}
	if balance.LessThan(req.RequiredAmount) {
		return // 还没到账
	}

	logger.Info("[Monitor] 检测到足额入账",
		zap.Uint64("request_id", req.ID),
		zap.String("address", req.Address),
		zap.String("balance", balance.String()),
		zap.String("required", req.RequiredAmount.String()))

	// 2. 查激活状态
	acct, err := m.client.GetAccount(ctx, req.Address)
	if err != nil {
		logger.Warn("[Monitor] 激活状态查询失败",
			zap.Uint64("request_id", req.ID), zap.Error(err))
		return
	}

	if acct == nil {
		// 3. 未激活: 先原子占位 activating，再调赞助
		// 这个 CAS 是请求级的互斥凭据，抢不到说明别的周期/实例在处理
		won, err := m.store.CASStatus(ctx, req.ID, []string{model.StatusPending}, model.StatusActivating)
		if err != nil {
			logger.Error("[Monitor] 状态迁移失败", zap.Uint64("request_id", req.ID), zap.Error(err))
			return
		}
		if !won {
			return
		}

		// 4. 赞助: 非完全成功时请求停留在 activating，由恢复任务处理
		if !m.sponsorAddress(ctx, req) {
			return
		}
	}

	// 5. 入账流水 + 标记 paid
	m.markPaid(ctx, req)
}

// sponsorAddress 调用编排器，返回是否可以继续推进到 paid
func (m *PaymentMonitor) sponsorAddress(ctx context.Context, req *model.PaymentRequest) bool {
	result, err := m.orchestrator.Sponsor(ctx, req.Address, m.sponsorDays)

	switch result.Outcome {
	case sponsor.OutcomeCompleted, sponsor.OutcomeAlreadySponsored:
		return true

	case sponsor.OutcomeInsufficientCapacity:
		// 完全安全: 没有任何链上调用发生
		m.alerter.Notify(ctx, AlertEvent{
			Type:      AlertInsufficientCap,
			RequestID: req.ID,
			Address:   req.Address,
			Detail:    result.Reason,
		})
		return false

	case sponsor.OutcomePartial:
		alertType := AlertPartialSponsorship
		if errors.Is(err, sponsor.ErrConfirmTimeout) {
			alertType = AlertConfirmTimeout
		}
		m.alerter.Notify(ctx, AlertEvent{
			Type:      alertType,
			RequestID: req.ID,
			Address:   req.Address,
			TxID:      firstNonEmpty(result.BandwidthTx, result.EnergyTx, result.ActivationTx),
			Detail:    err.Error(),
		})
		return false

	default:
		if err != nil && !errors.Is(err, sponsor.ErrAddressBusy) && !errors.Is(err, sponsor.ErrAccountBusy) {
			logger.Error("[Monitor] 赞助失败",
				zap.Uint64("request_id", req.ID), zap.String("address", req.Address), zap.Error(err))
		}
		return false
	}
}

// markPaid 把链上转账事件落成流水，并迁移状态到 paid
// 匹配规则: 收款地址 + 金额对未结清额度; 对不上的情况照样留痕并告警
func (m *PaymentMonitor) markPaid(ctx context.Context, req *model.PaymentRequest) {
	events, err := m.client.TRC20Transfers(ctx, m.usdtContract, req.Address, 20)
	if err != nil {
		logger.Warn("[Monitor] 转账事件查询失败，延后落账",
			zap.Uint64("request_id", req.ID), zap.Error(err))
		return
	}

	already, err := m.store.SumTransfers(ctx, req.ID)
	if err != nil {
		logger.Error("[Monitor] 流水汇总失败", zap.Uint64("request_id", req.ID), zap.Error(err))
		return
	}

	outstanding := req.RequiredAmount.Sub(already)
	matched := decimal.Zero

	// 事件按最新在前返回; 从新往旧吃，直到补齐未结清额度
	for _, ev := range events {
		if matched.GreaterThanOrEqual(outstanding) {
			break
		}
		created, err := m.store.AppendTransfer(ctx, &model.TransferRecord{
			RequestID:   req.ID,
			FromAddress: ev.From,
			Amount:      ev.Amount,
			TxID:        ev.TxID,
			BlockTime:   ev.BlockTime,
		})
		if err != nil {
			logger.Error("[Monitor] 流水写入失败",
				zap.Uint64("request_id", req.ID), zap.String("txid", ev.TxID), zap.Error(err))
			return
		}
		if !created {
			continue // 该交易已入账过 (tx_id 唯一索引兜底)
		}
		matched = matched.Add(ev.Amount)
		monitor.Business.TransferMatchedTotal.Inc()
		logger.Info("[Monitor] 入账流水",
			zap.Uint64("request_id", req.ID),
			zap.String("from", ev.From),
			zap.String("amount", ev.Amount.String()),
			zap.String("txid", ev.TxID))
	}

	// 事件拼不齐/超出应收: 部分支付或多笔混付，留给运营裁决
	if !matched.Equal(outstanding) {
		monitor.Business.MatchAmbiguityTotal.Inc()
		m.alerter.Notify(ctx, AlertEvent{
			Type:      AlertMatchingAmbiguity,
			RequestID: req.ID,
			Address:   req.Address,
			Amount:    matched.String(),
			Detail:    "应收 " + outstanding.String() + ", 匹配到 " + matched.String(),
		})
	}

	ok, err := m.store.CASStatus(ctx, req.ID, []string{model.StatusPending, model.StatusActivating}, model.StatusPaid)
	if err != nil {
		logger.Error("[Monitor] 标记 paid 失败", zap.Uint64("request_id", req.ID), zap.Error(err))
		return
	}
	if ok {
		logger.Info("[Monitor] 请求已支付", zap.Uint64("request_id", req.ID), zap.String("address", req.Address))
	}
}

func (m *PaymentMonitor) refreshStatusGauge(ctx context.Context) {
	counts, err := m.store.CountByStatus(ctx)
	if err != nil {
		return
	}
	for _, status := range []string{
		model.StatusPending, model.StatusActivating, model.StatusPaid, model.StatusSwept, model.StatusExpired,
	} {
		monitor.Business.RequestStatusGauge.WithLabelValues(status).Set(float64(counts[status]))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
