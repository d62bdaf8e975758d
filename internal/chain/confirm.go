package chain

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sponsor-core/pkg/logger"
)

// WaitOutcome 等待回执的三种结局
// Timeout 不等于失败: 交易之后仍可能上链，需要后续对账
type WaitOutcome int

const (
	WaitConfirmed WaitOutcome = iota
	WaitRejected
	WaitTimeout
)

func (o WaitOutcome) String() string {
	switch o {
	case WaitConfirmed:
		return "confirmed"
	case WaitRejected:
		return "rejected"
	default:
		return "timeout"
	}
}

// ReceiptLookup 回执查询函数，由 Client.GetReceipt 适配
type ReceiptLookup func(ctx context.Context, txid string) (*Receipt, error)

// Waiter 固定间隔轮询回执，直到终态或次数耗尽
// 最坏等待时间 = attempts × delay，对每笔链上操作是确定的
type Waiter struct {
	lookup   ReceiptLookup
	attempts int
	delay    time.Duration
}

func NewWaiter(lookup ReceiptLookup, attempts int, delay time.Duration) *Waiter {
	if attempts < 1 {
		attempts = 1
	}
	return &Waiter{lookup: lookup, attempts: attempts, delay: delay}
}

// Await 轮询 txid 的回执
// 查询出错视为一次未命中继续重试，不向上抛; ctx 取消立即返回
func (w *Waiter) Await(ctx context.Context, txid string) (WaitOutcome, error) {
	for i := 0; i < w.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return WaitTimeout, ctx.Err()
			case <-time.After(w.delay):
			}
		}

		receipt, err := w.lookup(ctx, txid)
		if err != nil {
			// 瞬时网络/节点错误，当作本轮未查到
			logger.Debug("[Waiter] 回执查询失败，继续重试",
				zap.String("txid", txid), zap.Int("attempt", i+1), zap.Error(err))
			continue
		}

		switch receipt.Status {
		case ReceiptSuccess:
			return WaitConfirmed, nil
		case ReceiptFailed:
			logger.Warn("[Waiter] 交易被链上拒绝",
				zap.String("txid", txid), zap.String("message", receipt.Message))
			return WaitRejected, nil
		}
		// ReceiptPending: 下一轮
	}
	return WaitTimeout, nil
}
