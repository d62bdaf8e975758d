package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"sponsor-core/internal/ledger"
	"sponsor-core/internal/model"
	"sponsor-core/internal/store"
	"sponsor-core/pkg/logger"
	"sponsor-core/pkg/monitor"
	"sponsor-core/pkg/utils/lock"
)

// CronService 周期性维护任务:
// 1. pending 过期清理
// 2. 卡在 activating 的请求回退重试 (带上限)
// 3. 刷新容量指标
type CronService struct {
	cron   *cron.Cron
	locker lock.DistributedLock
	store  store.RequestStore
	ledger *ledger.Ledger
	alert  *Alerter

	pendingTTL        time.Duration
	activatingTimeout time.Duration
	maxRetries        int
}

func NewCronService(locker lock.DistributedLock, st store.RequestStore, lg *ledger.Ledger, alert *Alerter, pendingTTL, activatingTimeout time.Duration, maxRetries int) *CronService {
	return &CronService{
		cron:              cron.New(),
		locker:            locker,
		store:             st,
		ledger:            lg,
		alert:             alert,
		pendingTTL:        pendingTTL,
		activatingTimeout: activatingTimeout,
		maxRetries:        maxRetries,
	}
}

func (s *CronService) Start() {
	// 注册任务
	_, _ = s.cron.AddFunc("@every 5m", s.ExpireStaleRequests)
	_, _ = s.cron.AddFunc("@every 2m", s.RecoverStuckActivating)
	_, _ = s.cron.AddFunc("@every 1m", s.RefreshCapacityMetrics)

	s.cron.Start()
	logger.Info("Cron Service started")
}

func (s *CronService) Stop() {
	s.cron.Stop()
	logger.Info("Cron Service stopped")
}

// withLock 拿到分布式锁才执行，防止多实例重复跑
func (s *CronService) withLock(key string, ttl time.Duration, fn func(ctx context.Context)) {
	ctx := context.Background()
	locked, err := s.locker.Acquire(ctx, key, ttl)
	if err != nil || !locked {
		logger.Debug("Cron: 获取锁失败或已有实例在运行", zap.String("key", key))
		return
	}
	defer s.locker.Release(ctx, key)

	fn(ctx)
}

// ExpireStaleRequests pending 超过 TTL 的请求标记 expired
func (s *CronService) ExpireStaleRequests() {
	s.withLock("cron:lock:expire_requests", time.Minute, func(ctx context.Context) {
		cutoff := time.Now().Add(-s.pendingTTL)
		reqs, err := s.store.ListStale(ctx, model.StatusPending, cutoff, 100)
		if err != nil {
			logger.Error("[Cron] 查询过期请求失败", zap.Error(err))
			return
		}
		for _, req := range reqs {
			ok, err := s.store.CASStatus(ctx, req.ID, []string{model.StatusPending}, model.StatusExpired)
			if err != nil {
				logger.Error("[Cron] 标记 expired 失败", zap.Uint64("request_id", req.ID), zap.Error(err))
				continue
			}
			if ok {
				logger.Info("[Cron] 请求过期", zap.Uint64("request_id", req.ID), zap.String("address", req.Address))
			}
		}
	})
}

// RecoverStuckActivating 赞助失败后卡在 activating 的请求回退 pending
// 注意: 这是状态机单调性的唯一例外，且有重试上限兜底
func (s *CronService) RecoverStuckActivating() {
	s.withLock("cron:lock:recover_activating", time.Minute, func(ctx context.Context) {
		cutoff := time.Now().Add(-s.activatingTimeout)
		reqs, err := s.store.ListStale(ctx, model.StatusActivating, cutoff, 100)
		if err != nil {
			logger.Error("[Cron] 查询卡住请求失败", zap.Error(err))
			return
		}

		for _, req := range reqs {
			if req.SponsorRetries >= s.maxRetries {
				// 重试耗尽: 留在 activating，交给运营处理
				monitor.Business.RecoveryExhaustedTotal.Inc()
				s.alert.Notify(ctx, AlertEvent{
					Type:      AlertRetriesExhausted,
					RequestID: req.ID,
					Address:   req.Address,
					Detail:    "赞助重试次数耗尽，需要人工介入",
				})
				continue
			}

			ok, err := s.store.RequeueActivating(ctx, req.ID)
			if err != nil {
				logger.Error("[Cron] 回退请求失败", zap.Uint64("request_id", req.ID), zap.Error(err))
				continue
			}
			if ok {
				monitor.Business.RecoveryRequeueTotal.Inc()
				logger.Warn("[Cron] activating 卡住，回退 pending 重试",
					zap.Uint64("request_id", req.ID),
					zap.Int("retries", req.SponsorRetries+1))
			}
		}
	})
}

// RefreshCapacityMetrics 刷新容量指标供告警面板使用
func (s *CronService) RefreshCapacityMetrics() {
	s.withLock("cron:lock:capacity_metrics", 30*time.Second, func(ctx context.Context) {
		c, err := s.ledger.DailyCapacity(ctx)
		if err != nil {
			logger.Warn("[Cron] 容量计算失败", zap.Error(err))
			return
		}
		monitor.Business.DailyTxCapacity.Set(float64(c.TxCapacity))
		monitor.Business.ActivationCapacity.Set(float64(c.ActivationCapacity))
		for _, r := range []string{"energy", "bandwidth", "balance"} {
			v := 0.0
			if r == c.Bottleneck {
				v = 1.0
			}
			monitor.Business.CapacityBottleneck.WithLabelValues(r).Set(v)
		}
	})
}
