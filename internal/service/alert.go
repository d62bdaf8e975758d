package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"sponsor-core/internal/service/mq"
	"sponsor-core/pkg/logger"
)

// 歧义结果不允许静默: 超时、部分成功、匹配不清都要推到运营侧
const (
	AlertPartialSponsorship = "partial_sponsorship"
	AlertConfirmTimeout     = "confirmation_timeout"
	AlertMatchingAmbiguity  = "matching_ambiguity"
	AlertRetriesExhausted   = "sponsor_retries_exhausted"
	AlertInsufficientCap    = "insufficient_capacity"
	AlertSweepFailed        = "sweep_failed"
)

// AlertEvent 运营告警事件 (JSON 入队)
type AlertEvent struct {
	Type      string    `json:"type"`
	RequestID uint64    `json:"request_id,omitempty"`
	Address   string    `json:"address,omitempty"`
	TxID      string    `json:"tx_id,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Alerter 把告警事件发到 MQ 主题
type Alerter struct {
	producer mq.Producer
	topic    string
}

func NewAlerter(producer mq.Producer, topic string) *Alerter {
	return &Alerter{producer: producer, topic: topic}
}

// Notify 发布一条告警; MQ 不可用时降级为错误日志，不影响主流程
func (a *Alerter) Notify(ctx context.Context, event AlertEvent) {
	event.Timestamp = time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("[Alert] 序列化失败", zap.Error(err))
		return
	}

	if err := a.producer.Publish(ctx, a.topic, event.Address, payload); err != nil {
		logger.Error("[Alert] 告警发布失败，仅记录日志",
			zap.String("type", event.Type),
			zap.String("address", event.Address),
			zap.String("detail", event.Detail),
			zap.Error(err))
		return
	}
	logger.Info("[Alert] 已发布运营告警",
		zap.String("type", event.Type),
		zap.String("address", event.Address),
		zap.Uint64("request_id", event.RequestID))
}
