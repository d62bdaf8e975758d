package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sponsor-core/internal/chain"
	"sponsor-core/internal/ledger"
	"sponsor-core/internal/model"
	"sponsor-core/internal/sponsor"
	"sponsor-core/pkg/monitor"
)

const (
	testSponsor  = "TLa2f6VPqDgRE67v1736s7bJ8Ray5wYjU7"
	testBuyer    = "TNPeeaaFB7K9cmo4uQpcU32zGK8G1NYqeL"
	testTreasury = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	testContract = "TEkxiTehnzSmSe2XqrBj4w32RUN966rdz8"
)

func TestMain(m *testing.M) {
	monitor.InitBusinessMetrics()
	m.Run()
}

// memStore 内存版 RequestStore, 语义对齐 GormStore:
// CAS 原子推进状态，流水按 tx_id 去重
type memStore struct {
	mu        sync.Mutex
	requests  map[uint64]*model.PaymentRequest
	transfers map[string]*model.TransferRecord // key: tx_id
}

func newMemStore(reqs ...*model.PaymentRequest) *memStore {
	s := &memStore{
		requests:  make(map[uint64]*model.PaymentRequest),
		transfers: make(map[string]*model.TransferRecord),
	}
	for _, r := range reqs {
		s.requests[r.ID] = r
	}
	return s
}

func (s *memStore) Get(ctx context.Context, id uint64) (*model.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *s.requests[id]
	return &r, nil
}

func (s *memStore) ListByStatus(ctx context.Context, status string, limit int) ([]model.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PaymentRequest
	for _, r := range s.requests {
		if r.Status == status && len(out) < limit {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) ListStale(ctx context.Context, status string, before time.Time, limit int) ([]model.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PaymentRequest
	for _, r := range s.requests {
		if r.Status == status && r.UpdatedAt.Before(before) && len(out) < limit {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) CASStatus(ctx context.Context, id uint64, from []string, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if r.Status == f {
			r.Status = to
			r.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) RequeueActivating(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok || r.Status != model.StatusActivating {
		return false, nil
	}
	r.Status = model.StatusPending
	r.SponsorRetries++
	r.UpdatedAt = time.Now()
	return true, nil
}

func (s *memStore) AppendTransfer(ctx context.Context, rec *model.TransferRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transfers[rec.TxID]; exists {
		return false, nil
	}
	s.transfers[rec.TxID] = rec
	return true, nil
}

func (s *memStore) SumTransfers(ctx context.Context, requestID uint64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, t := range s.transfers {
		if t.RequestID == requestID {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (s *memStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64)
	for _, r := range s.requests {
		out[r.Status]++
	}
	return out, nil
}

func (s *memStore) status(id uint64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id].Status
}

// memProducer 把告警留在内存里供断言
type memProducer struct {
	mu     sync.Mutex
	events []AlertEvent
}

func (p *memProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ev AlertEvent
	_ = json.Unmarshal(payload, &ev)
	p.events = append(p.events, ev)
	return nil
}

func (p *memProducer) Close() error { return nil }

func (p *memProducer) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// noopLock 永远拿得到的进程内锁
type noopLock struct{}

func (noopLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (noopLock) Release(ctx context.Context, key string) error { return nil }

// svcChain 覆盖支付监控用到的全部链访问
type svcChain struct {
	accounts  map[string]*chain.Account
	resource  *chain.AccountResource
	delegated chain.DelegatedResource
	receipt   chain.ReceiptStatus

	balances map[string]decimal.Decimal
	events   []chain.TransferEvent

	sweepErr error

	spends     []string
	sweepCalls int
}

func (f *svcChain) GetAccount(ctx context.Context, addr string) (*chain.Account, error) {
	return f.accounts[addr], nil
}

func (f *svcChain) GetAccountResource(ctx context.Context, addr string) (*chain.AccountResource, error) {
	return f.resource, nil
}

func (f *svcChain) GetDelegatedResource(ctx context.Context, from, to string) (*chain.DelegatedResource, error) {
	return &f.delegated, nil
}

func (f *svcChain) TransferTRX(ctx context.Context, from, to string, amountSun int64) (string, error) {
	f.spends = append(f.spends, "transfer")
	return "tx-activation", nil
}

func (f *svcChain) DelegateResource(ctx context.Context, from, to string, balanceSun int64, resource chain.ResourceKind) (string, error) {
	f.spends = append(f.spends, "delegate-"+string(resource))
	return "tx-" + string(resource), nil
}

func (f *svcChain) GetReceipt(ctx context.Context, txid string) (*chain.Receipt, error) {
	return &chain.Receipt{TxID: txid, Status: f.receipt}, nil
}

func (f *svcChain) TRC20Balance(ctx context.Context, contract, holder string) (decimal.Decimal, error) {
	return f.balances[holder], nil
}

func (f *svcChain) TRC20Transfers(ctx context.Context, contract, to string, limit int) ([]chain.TransferEvent, error) {
	return f.events, nil
}

func (f *svcChain) TRC20Transfer(ctx context.Context, contract, from, to string, amount decimal.Decimal) (string, error) {
	f.sweepCalls++
	if f.sweepErr != nil {
		return "", f.sweepErr
	}
	return "tx-sweep", nil
}

func newSvcChain() *svcChain {
	return &svcChain{
		accounts: map[string]*chain.Account{
			testSponsor: {Address: testSponsor, BalanceSun: 100_000_000},
		},
		resource: &chain.AccountResource{EnergyLimit: 10_000_000, NetLimit: 1_000_000},
		receipt:  chain.ReceiptSuccess,
		balances: map[string]decimal.Decimal{},
	}
}

func ledgerFor(f *svcChain) *ledger.Ledger {
	return ledger.New(f, testSponsor, ledger.Costs{
		EnergyPerTx:    31_895,
		BandwidthPerTx: 345,
		ActivationSun:  1_000_000,
	})
}

func newTestMonitor(st *memStore, f *svcChain, producer *memProducer) *PaymentMonitor {
	lg := ledgerFor(f)
	waiter := chain.NewWaiter(f.GetReceipt, 2, time.Millisecond)
	orch := sponsor.NewOrchestrator(f, lg, waiter, noopLock{}, testSponsor, sponsor.Sizing{
		ActivationSun:   1_000_000,
		EnergyPerTx:     31_895,
		BandwidthPerTx:  345,
		DailyTxEstimate: 10,
		MinDelegateSun:  1_000_000,
		EnergyPerSun:    decimal.RequireFromString("0.01"),
		BandwidthPerSun: decimal.RequireFromString("0.001"),
	})
	return NewPaymentMonitor(st, f, orch, NewAlerter(producer, "sponsor_alerts"), MonitorOptions{
		USDTContract: testContract,
		Interval:     time.Minute,
		BatchSize:    50,
		SponsorDays:  1,
	})
}

func pendingRequest(id uint64, amount string) *model.PaymentRequest {
	return &model.PaymentRequest{
		ID:             id,
		Address:        testBuyer,
		RequiredAmount: decimal.RequireFromString(amount),
		Status:         model.StatusPending,
		UpdatedAt:      time.Now(),
	}
}

func TestScanNoDeposit(t *testing.T) {
	st := newMemStore(pendingRequest(1, "50"))
	f := newSvcChain()
	f.balances[testBuyer] = decimal.RequireFromString("10") // 不足额

	m := newTestMonitor(st, f, &memProducer{})
	m.Scan(context.Background())

	assert.Equal(t, model.StatusPending, st.status(1))
	assert.Empty(t, f.spends)
}

func TestScanSponsorsAndMarksPaid(t *testing.T) {
	st := newMemStore(pendingRequest(1, "50"))
	f := newSvcChain()
	f.balances[testBuyer] = decimal.RequireFromString("50")
	f.events = []chain.TransferEvent{
		{TxID: "t1", From: testTreasury, To: testBuyer, Amount: decimal.RequireFromString("50"), BlockTime: time.Now()},
	}

	producer := &memProducer{}
	m := newTestMonitor(st, f, producer)
	m.Scan(context.Background())

	assert.Equal(t, model.StatusPaid, st.status(1))
	// 未激活地址: 激活 + 两笔代理
	assert.Equal(t, []string{"transfer", "delegate-ENERGY", "delegate-BANDWIDTH"}, f.spends)
	assert.Len(t, st.transfers, 1)
	assert.Empty(t, producer.types(), "干净匹配不应产生告警")
}

func TestScanActivatedAddressSkipsSponsorship(t *testing.T) {
	st := newMemStore(pendingRequest(1, "50"))
	f := newSvcChain()
	f.accounts[testBuyer] = &chain.Account{Address: testBuyer}
	f.balances[testBuyer] = decimal.RequireFromString("50")
	f.events = []chain.TransferEvent{
		{TxID: "t1", From: testTreasury, To: testBuyer, Amount: decimal.RequireFromString("50"), BlockTime: time.Now()},
	}

	m := newTestMonitor(st, f, &memProducer{})
	m.Scan(context.Background())

	assert.Equal(t, model.StatusPaid, st.status(1))
	assert.Empty(t, f.spends, "已激活地址不走赞助流程")
}

func TestScanIdempotentAcrossCycles(t *testing.T) {
	st := newMemStore(pendingRequest(1, "50"))
	f := newSvcChain()
	f.balances[testBuyer] = decimal.RequireFromString("50")
	f.events = []chain.TransferEvent{
		{TxID: "t1", From: testTreasury, To: testBuyer, Amount: decimal.RequireFromString("50"), BlockTime: time.Now()},
	}

	m := newTestMonitor(st, f, &memProducer{})
	ctx := context.Background()
	m.Scan(ctx)
	spends := len(f.spends)
	transfers := len(st.transfers)

	// 第二轮: 请求已不在 pending，不应有任何新动作
	m.Scan(ctx)
	assert.Equal(t, spends, len(f.spends))
	assert.Equal(t, transfers, len(st.transfers))
	assert.Equal(t, model.StatusPaid, st.status(1))
}

func TestScanPartialSponsorshipStaysActivating(t *testing.T) {
	st := newMemStore(pendingRequest(1, "50"))
	f := newSvcChain()
	f.balances[testBuyer] = decimal.RequireFromString("50")
	f.receipt = chain.ReceiptPending // 激活交易确认超时

	producer := &memProducer{}
	m := newTestMonitor(st, f, producer)
	m.Scan(context.Background())

	// 留在 activating, 等恢复任务裁决; 告警必须发出
	assert.Equal(t, model.StatusActivating, st.status(1))
	require.NotEmpty(t, producer.types())
	assert.Equal(t, AlertConfirmTimeout, producer.types()[0])
}

func TestScanInsufficientCapacityAlerts(t *testing.T) {
	st := newMemStore(pendingRequest(1, "50"))
	f := newSvcChain()
	f.balances[testBuyer] = decimal.RequireFromString("50")
	f.resource.EnergyLimit = 100 // 容量枯竭

	producer := &memProducer{}
	m := newTestMonitor(st, f, producer)
	m.Scan(context.Background())

	assert.Equal(t, model.StatusActivating, st.status(1))
	assert.Empty(t, f.spends)
	require.NotEmpty(t, producer.types())
	assert.Equal(t, AlertInsufficientCap, producer.types()[0])
}

func TestScanAmbiguousMatchingAlerts(t *testing.T) {
	st := newMemStore(pendingRequest(1, "50"))
	f := newSvcChain()
	f.accounts[testBuyer] = &chain.Account{Address: testBuyer}
	f.balances[testBuyer] = decimal.RequireFromString("60")
	// 两笔 30 拼不出恰好 50
	f.events = []chain.TransferEvent{
		{TxID: "t2", From: testTreasury, To: testBuyer, Amount: decimal.RequireFromString("30"), BlockTime: time.Now()},
		{TxID: "t1", From: testTreasury, To: testBuyer, Amount: decimal.RequireFromString("30"), BlockTime: time.Now().Add(-time.Minute)},
	}

	producer := &memProducer{}
	m := newTestMonitor(st, f, producer)
	m.Scan(context.Background())

	// 留痕照常，请求照样推进，但歧义必须上报
	assert.Equal(t, model.StatusPaid, st.status(1))
	assert.Len(t, st.transfers, 2)
	assert.Contains(t, producer.types(), AlertMatchingAmbiguity)
}

func TestScanTransferDedup(t *testing.T) {
	req := pendingRequest(1, "50")
	st := newMemStore(req)
	// 这笔交易之前已经入账过
	st.transfers["t1"] = &model.TransferRecord{RequestID: 1, TxID: "t1", Amount: decimal.RequireFromString("50")}
	req.Status = model.StatusPending

	f := newSvcChain()
	f.accounts[testBuyer] = &chain.Account{Address: testBuyer}
	f.balances[testBuyer] = decimal.RequireFromString("50")
	f.events = []chain.TransferEvent{
		{TxID: "t1", From: testTreasury, To: testBuyer, Amount: decimal.RequireFromString("50"), BlockTime: time.Now()},
	}

	producer := &memProducer{}
	m := newTestMonitor(st, f, producer)
	m.Scan(context.Background())

	assert.Equal(t, model.StatusPaid, st.status(1))
	assert.Len(t, st.transfers, 1, "同一 tx_id 只允许一行流水")
}
