package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	SponsorshipTotal       *prometheus.CounterVec   // outcome: completed / partial / insufficient_capacity / failed
	SponsorshipStepTotal   *prometheus.CounterVec   // step: activation / energy / bandwidth, result: confirmed / timeout / rejected
	ConfirmationDuration   *prometheus.HistogramVec // 回执确认耗时
	TransferMatchedTotal   prometheus.Counter       // 入账匹配成功的链上转账笔数
	MatchAmbiguityTotal    prometheus.Counter       // 无法干净匹配的转账事件
	RequestStatusGauge     *prometheus.GaugeVec     // 各状态请求数量
	DailyTxCapacity        prometheus.Gauge         // 当前可赞助交易笔数
	ActivationCapacity     prometheus.Gauge         // 当前余额可激活账户数
	CapacityBottleneck     *prometheus.GaugeVec     // 1 = 当前瓶颈资源
	SweepTotal             *prometheus.CounterVec   // result: confirmed / timeout / failed
	RecoveryRequeueTotal   prometheus.Counter       // activating 回退 pending 的次数
	RecoveryExhaustedTotal prometheus.Counter       // 重试耗尽的请求数
}

// Global Metrics Instance
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
// server 和 cli 都会在各自入口调用，重复调用直接返回 (promauto 重复注册会 panic)
func InitBusinessMetrics() {
	if Business != nil {
		return
	}
	Business = &BusinessMetrics{
		SponsorshipTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sponsor_sponsorship_total",
			Help: "Sponsorship attempts by outcome",
		}, []string{"outcome"}),
		SponsorshipStepTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sponsor_sponsorship_step_total",
			Help: "Individual sponsorship steps by result",
		}, []string{"step", "result"}),
		ConfirmationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sponsor_confirmation_duration_seconds",
			Help:    "Time spent waiting for transaction receipts",
			Buckets: []float64{1, 3, 5, 10, 20, 30, 60},
		}, []string{"operation"}),
		TransferMatchedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sponsor_transfer_matched_total",
			Help: "On-chain transfers matched against payment requests",
		}),
		MatchAmbiguityTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sponsor_transfer_ambiguity_total",
			Help: "Transfer events that did not cleanly satisfy a request",
		}),
		RequestStatusGauge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sponsor_requests",
			Help: "Payment requests by status",
		}, []string{"status"}),
		DailyTxCapacity: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sponsor_daily_tx_capacity",
			Help: "Transactions the sponsor account can currently fund",
		}),
		ActivationCapacity: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sponsor_activation_capacity",
			Help: "Account activations the sponsor balance can currently fund",
		}),
		CapacityBottleneck: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sponsor_capacity_bottleneck",
			Help: "Set to 1 for the resource currently limiting capacity",
		}, []string{"resource"}),
		SweepTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sponsor_sweep_total",
			Help: "Sweep attempts by result",
		}, []string{"result"}),
		RecoveryRequeueTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sponsor_recovery_requeue_total",
			Help: "Stuck activating requests returned to pending",
		}),
		RecoveryExhaustedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sponsor_recovery_exhausted_total",
			Help: "Requests whose sponsorship retries are exhausted",
		}),
	}
}
