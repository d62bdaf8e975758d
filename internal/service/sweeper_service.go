package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sponsor-core/internal/chain"
	"sponsor-core/internal/model"
	"sponsor-core/internal/store"
	"sponsor-core/pkg/logger"
	"sponsor-core/pkg/monitor"
	"sponsor-core/pkg/utils/lock"
)

// SweeperService 负责资金归集
// paid 请求的收款地址把 USDT 转去国库地址，确认后标记 swept
// 转账消耗的就是之前代理给该地址的能量/带宽
type SweeperService struct {
	store    store.RequestStore
	client   chain.Client
	waiter   *chain.Waiter
	alerter  *Alerter
	distLock lock.DistributedLock

	usdtContract string
	treasury     string
	interval     time.Duration
	batchSize    int
}

func NewSweeperService(st store.RequestStore, client chain.Client, waiter *chain.Waiter, alerter *Alerter, distLock lock.DistributedLock, usdtContract, treasury string, interval time.Duration, batchSize int) *SweeperService {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &SweeperService{
		store:        st,
		client:       client,
		waiter:       waiter,
		alerter:      alerter,
		distLock:     distLock,
		usdtContract: usdtContract,
		treasury:     treasury,
		interval:     interval,
		batchSize:    batchSize,
	}
}

// Start 启动归集循环
func (s *SweeperService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	logger.Info("[Sweeper] 启动资金归集服务", zap.String("treasury", s.treasury))

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("[Sweeper] 停止服务")
				return
			case <-ticker.C:
				s.processPaid(ctx)
			}
		}
	}()
}

func (s *SweeperService) processPaid(ctx context.Context) {
	reqs, err := s.store.ListByStatus(ctx, model.StatusPaid, s.batchSize)
	if err != nil {
		logger.Error("[Sweeper] 查询 paid 请求失败", zap.Error(err))
		return
	}

	for i := range reqs {
		s.sweepOne(ctx, &reqs[i])
	}
}

func (s *SweeperService) sweepOne(ctx context.Context, req *model.PaymentRequest) {
	// 1. 分布式锁: 多实例下同一请求只归集一次
	lockKey := fmt.Sprintf("sweeper:request:%d", req.ID)
	locked, err := s.distLock.Acquire(ctx, lockKey, 10*time.Minute)
	if err != nil {
		logger.Error("[Sweeper] 获取锁失败", zap.Error(err))
		return
	}
	if !locked {
		return
	}
	defer s.distLock.Release(ctx, lockKey)

	// 2. 查余额; 已经空了说明外部已归集，直接标记
	balance, err := s.client.TRC20Balance(ctx, s.usdtContract, req.Address)
	if err != nil {
		logger.Warn("[Sweeper] 余额查询失败", zap.Uint64("request_id", req.ID), zap.Error(err))
		return
	}
	if balance.IsZero() {
		s.markSwept(ctx, req, "")
		return
	}

	// 3. 全额转到国库
	txid, err := s.client.TRC20Transfer(ctx, s.usdtContract, req.Address, s.treasury, balance)
	if err != nil {
		monitor.Business.SweepTotal.WithLabelValues("failed").Inc()
		logger.Error("[Sweeper] 归集转账失败",
			zap.Uint64("request_id", req.ID), zap.String("address", req.Address), zap.Error(err))
		s.alerter.Notify(ctx, AlertEvent{
			Type:      AlertSweepFailed,
			RequestID: req.ID,
			Address:   req.Address,
			Amount:    balance.String(),
			Detail:    err.Error(),
		})
		return
	}

	outcome, err := s.waiter.Await(ctx, txid)
	if err != nil {
		return // ctx 取消
	}
	switch outcome {
	case chain.WaitConfirmed:
		monitor.Business.SweepTotal.WithLabelValues("confirmed").Inc()
		logger.Info("[Sweeper] 归集完成",
			zap.Uint64("request_id", req.ID),
			zap.String("amount", balance.String()),
			zap.String("txid", txid))
		s.markSwept(ctx, req, txid)
	case chain.WaitTimeout:
		// 交易可能还在路上: 保持 paid，下轮余额为零时再标记
		monitor.Business.SweepTotal.WithLabelValues("timeout").Inc()
		s.alerter.Notify(ctx, AlertEvent{
			Type:      AlertConfirmTimeout,
			RequestID: req.ID,
			Address:   req.Address,
			TxID:      txid,
			Detail:    "归集交易确认超时",
		})
	default:
		monitor.Business.SweepTotal.WithLabelValues("rejected").Inc()
		s.alerter.Notify(ctx, AlertEvent{
			Type:      AlertSweepFailed,
			RequestID: req.ID,
			Address:   req.Address,
			TxID:      txid,
			Detail:    "归集交易被链上拒绝",
		})
	}
}

func (s *SweeperService) markSwept(ctx context.Context, req *model.PaymentRequest, txid string) {
	ok, err := s.store.CASStatus(ctx, req.ID, []string{model.StatusPaid}, model.StatusSwept)
	if err != nil {
		logger.Error("[Sweeper] 标记 swept 失败", zap.Uint64("request_id", req.ID), zap.Error(err))
		return
	}
	if ok {
		logger.Info("[Sweeper] 请求已归集", zap.Uint64("request_id", req.ID), zap.String("txid", txid))
	}
}
