package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"sponsor-core/internal/model"
)

func newTestCron(st *memStore, producer *memProducer) *CronService {
	return NewCronService(noopLock{}, st, ledgerFor(newSvcChain()), NewAlerter(producer, "sponsor_alerts"),
		time.Hour, 10*time.Minute, 3)
}

func TestExpireStaleRequests(t *testing.T) {
	stale := pendingRequest(1, "50")
	stale.UpdatedAt = time.Now().Add(-2 * time.Hour)
	fresh := pendingRequest(2, "50")
	paid := paidRequest(3)
	paid.UpdatedAt = time.Now().Add(-2 * time.Hour)

	st := newMemStore(stale, fresh, paid)
	c := newTestCron(st, &memProducer{})
	c.ExpireStaleRequests()

	assert.Equal(t, model.StatusExpired, st.status(1))
	assert.Equal(t, model.StatusPending, st.status(2), "TTL 内的请求不受影响")
	assert.Equal(t, model.StatusPaid, st.status(3), "过期只针对 pending")
}

func TestRecoverStuckActivating(t *testing.T) {
	stuck := &model.PaymentRequest{
		ID:             1,
		Address:        testBuyer,
		RequiredAmount: decimal.RequireFromString("50"),
		Status:         model.StatusActivating,
		UpdatedAt:      time.Now().Add(-time.Hour),
	}

	paid := paidRequest(2)
	paid.UpdatedAt = time.Now().Add(-time.Hour)

	st := newMemStore(stuck, paid)
	c := newTestCron(st, &memProducer{})
	c.RecoverStuckActivating()

	// 回退 pending 重试，计数累加
	assert.Equal(t, model.StatusPending, st.status(1))
	assert.Equal(t, 1, st.requests[1].SponsorRetries)
	// 恢复任务绝不碰 activating 之外的状态
	assert.Equal(t, model.StatusPaid, st.status(2))
}

func TestRecoverStuckActivatingRetriesExhausted(t *testing.T) {
	stuck := &model.PaymentRequest{
		ID:             1,
		Address:        testBuyer,
		RequiredAmount: decimal.RequireFromString("50"),
		Status:         model.StatusActivating,
		SponsorRetries: 3,
		UpdatedAt:      time.Now().Add(-time.Hour),
	}

	st := newMemStore(stuck)
	producer := &memProducer{}
	c := newTestCron(st, producer)
	c.RecoverStuckActivating()

	// 重试耗尽: 停在 activating 等人工介入
	assert.Equal(t, model.StatusActivating, st.status(1))
	assert.Equal(t, []string{AlertRetriesExhausted}, producer.types())
}

func TestRecoverSkipsFreshActivating(t *testing.T) {
	busy := &model.PaymentRequest{
		ID:             1,
		Address:        testBuyer,
		RequiredAmount: decimal.RequireFromString("50"),
		Status:         model.StatusActivating,
		UpdatedAt:      time.Now(), // 还在处理窗口内
	}

	st := newMemStore(busy)
	c := newTestCron(st, &memProducer{})
	c.RecoverStuckActivating()

	assert.Equal(t, model.StatusActivating, st.status(1))
	assert.Zero(t, st.requests[1].SponsorRetries)
}
