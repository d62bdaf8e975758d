package sponsor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sponsor-core/internal/chain"
	"sponsor-core/internal/ledger"
	"sponsor-core/pkg/monitor"
)

const (
	testSponsor = "TLa2f6VPqDgRE67v1736s7bJ8Ray5wYjU7"
	testTarget  = "TNPeeaaFB7K9cmo4uQpcU32zGK8G1NYqeL"
)

func TestMain(m *testing.M) {
	monitor.InitBusinessMetrics()
	m.Run()
}

// noopLock 进程内测试用，永远拿得到锁
type noopLock struct{}

func (noopLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (noopLock) Release(ctx context.Context, key string) error { return nil }

// fakeChain 记录全部花费类调用，查询按字段配置返回
type fakeChain struct {
	accounts  map[string]*chain.Account
	resource  *chain.AccountResource
	delegated chain.DelegatedResource
	receipt   chain.ReceiptStatus

	transferErr error
	delegateErr error

	spends []string // 花费类调用的顺序记录
}

func (f *fakeChain) GetAccount(ctx context.Context, addr string) (*chain.Account, error) {
	return f.accounts[addr], nil
}

func (f *fakeChain) GetAccountResource(ctx context.Context, addr string) (*chain.AccountResource, error) {
	return f.resource, nil
}

func (f *fakeChain) GetDelegatedResource(ctx context.Context, from, to string) (*chain.DelegatedResource, error) {
	return &f.delegated, nil
}

func (f *fakeChain) TransferTRX(ctx context.Context, from, to string, amountSun int64) (string, error) {
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.spends = append(f.spends, "transfer")
	return "tx-activation", nil
}

func (f *fakeChain) DelegateResource(ctx context.Context, from, to string, balanceSun int64, resource chain.ResourceKind) (string, error) {
	if f.delegateErr != nil {
		return "", f.delegateErr
	}
	f.spends = append(f.spends, "delegate-"+string(resource))
	return "tx-" + string(resource), nil
}

func (f *fakeChain) GetReceipt(ctx context.Context, txid string) (*chain.Receipt, error) {
	return &chain.Receipt{TxID: txid, Status: f.receipt}, nil
}

func (f *fakeChain) TRC20Balance(ctx context.Context, contract, holder string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeChain) TRC20Transfers(ctx context.Context, contract, to string, limit int) ([]chain.TransferEvent, error) {
	return nil, nil
}

func (f *fakeChain) TRC20Transfer(ctx context.Context, contract, from, to string, amount decimal.Decimal) (string, error) {
	return "", nil
}

// richSponsor 资源与余额都充足的赞助账户
func richSponsor() *fakeChain {
	return &fakeChain{
		accounts: map[string]*chain.Account{
			testSponsor: {Address: testSponsor, BalanceSun: 100_000_000},
		},
		resource: &chain.AccountResource{
			EnergyLimit: 10_000_000,
			NetLimit:    1_000_000,
		},
		receipt: chain.ReceiptSuccess,
	}
}

func newTestOrchestrator(f *fakeChain) *Orchestrator {
	lg := ledger.New(f, testSponsor, ledger.Costs{
		EnergyPerTx:    31_895,
		BandwidthPerTx: 345,
		ActivationSun:  1_000_000,
	})
	waiter := chain.NewWaiter(f.GetReceipt, 2, time.Millisecond)
	return NewOrchestrator(f, lg, waiter, noopLock{}, testSponsor, testSizing())
}

func TestSponsorFreshAccount(t *testing.T) {
	f := richSponsor() // 目标地址不在 accounts 里 = 未激活
	o := newTestOrchestrator(f)

	result, err := o.Sponsor(context.Background(), testTarget, 1)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, "tx-activation", result.ActivationTx)
	assert.Equal(t, "tx-ENERGY", result.EnergyTx)
	assert.Equal(t, "tx-BANDWIDTH", result.BandwidthTx)
	// 激活必须先于代理
	assert.Equal(t, []string{"transfer", "delegate-ENERGY", "delegate-BANDWIDTH"}, f.spends)
}

func TestSponsorActivatedAccountSkipsTransfer(t *testing.T) {
	f := richSponsor()
	f.accounts[testTarget] = &chain.Account{Address: testTarget}
	o := newTestOrchestrator(f)

	result, err := o.Sponsor(context.Background(), testTarget, 1)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Empty(t, result.ActivationTx)
	assert.Equal(t, []string{"delegate-ENERGY", "delegate-BANDWIDTH"}, f.spends)
}

func TestSponsorResumesFromPartialState(t *testing.T) {
	f := richSponsor()
	f.accounts[testTarget] = &chain.Account{Address: testTarget}
	// 上次跑到一半: 能量已经代理够了
	f.delegated = chain.DelegatedResource{EnergySun: 50_000_000}
	o := newTestOrchestrator(f)

	result, err := o.Sponsor(context.Background(), testTarget, 1)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Empty(t, result.EnergyTx, "已满足的步骤不允许重复花费")
	assert.Equal(t, []string{"delegate-BANDWIDTH"}, f.spends)
}

func TestSponsorAlreadySponsored(t *testing.T) {
	f := richSponsor()
	f.accounts[testTarget] = &chain.Account{Address: testTarget}
	f.delegated = chain.DelegatedResource{EnergySun: 50_000_000, BandwidthSun: 50_000_000}
	o := newTestOrchestrator(f)

	result, err := o.Sponsor(context.Background(), testTarget, 1)
	require.NoError(t, err)

	assert.Equal(t, OutcomeAlreadySponsored, result.Outcome)
	assert.Empty(t, f.spends)
}

func TestSponsorInsufficientCapacityNoChainSpend(t *testing.T) {
	f := richSponsor()
	f.resource.EnergyLimit = 1_000 // 远不够一笔
	o := newTestOrchestrator(f)

	result, err := o.Sponsor(context.Background(), testTarget, 1)
	require.NoError(t, err)

	assert.Equal(t, OutcomeInsufficientCapacity, result.Outcome)
	assert.NotEmpty(t, result.Reason)
	assert.Empty(t, f.spends, "容量不足时一笔链上花费都不允许发生")
}

func TestSponsorInsufficientBalanceForActivation(t *testing.T) {
	f := richSponsor()
	f.accounts[testSponsor].BalanceSun = 500_000 // 不够激活转账
	o := newTestOrchestrator(f)

	result, err := o.Sponsor(context.Background(), testTarget, 1)
	require.NoError(t, err)

	assert.Equal(t, OutcomeInsufficientCapacity, result.Outcome)
	assert.Empty(t, f.spends)
}

func TestSponsorPartialOnConfirmTimeout(t *testing.T) {
	f := richSponsor()
	f.receipt = chain.ReceiptPending // 永远等不到回执
	o := newTestOrchestrator(f)

	result, err := o.Sponsor(context.Background(), testTarget, 1)
	require.Error(t, err)

	assert.Equal(t, OutcomePartial, result.Outcome)
	assert.Equal(t, "tx-activation", result.ActivationTx, "已广播的 txid 必须暴露出来")
	assert.ErrorIs(t, err, ErrConfirmTimeout)

	var partial *PartialError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "activation", partial.FailedAt)
	assert.Empty(t, partial.Completed)

	// 激活没确认，绝不能继续代理
	assert.Equal(t, []string{"transfer"}, f.spends)
}

func TestSponsorRejectedFirstStepIsCleanFailure(t *testing.T) {
	f := richSponsor()
	f.receipt = chain.ReceiptFailed
	o := newTestOrchestrator(f)

	result, err := o.Sponsor(context.Background(), testTarget, 1)
	require.Error(t, err)

	// 链上拒绝 = 交易无效果, 没有任何已完成步骤时可以当干净失败重试
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestSponsorBroadcastErrorFirstStep(t *testing.T) {
	f := richSponsor()
	f.transferErr = errors.New("node unreachable")
	o := newTestOrchestrator(f)

	result, err := o.Sponsor(context.Background(), testTarget, 1)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Empty(t, result.ActivationTx)
}

func TestSponsorPartialAfterCompletedStep(t *testing.T) {
	f := richSponsor()
	f.accounts[testTarget] = &chain.Account{Address: testTarget}

	// 能量代理成功，带宽广播失败
	calls := 0
	o := newTestOrchestrator(f)
	o.client = &sequencedChain{fakeChain: f, failFrom: 2, calls: &calls}

	result, err := o.Sponsor(context.Background(), testTarget, 1)
	require.Error(t, err)

	assert.Equal(t, OutcomePartial, result.Outcome)
	var partial *PartialError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"energy"}, partial.Completed)
	assert.Equal(t, "bandwidth", partial.FailedAt)
}

func TestSponsorInvalidAddress(t *testing.T) {
	o := newTestOrchestrator(richSponsor())

	result, err := o.Sponsor(context.Background(), "not-an-address", 1)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
}

// sequencedChain 第 failFrom 次花费调用起开始报错
type sequencedChain struct {
	*fakeChain
	failFrom int
	calls    *int
}

func (s *sequencedChain) DelegateResource(ctx context.Context, from, to string, balanceSun int64, resource chain.ResourceKind) (string, error) {
	*s.calls++
	if *s.calls >= s.failFrom {
		return "", errors.New("node unreachable")
	}
	return s.fakeChain.DelegateResource(ctx, from, to, balanceSun, resource)
}
