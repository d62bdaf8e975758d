package chain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Client 抽象链访问
// 核心组件只依赖这个接口; 签名与共识细节由实现方负责
type Client interface {
	// GetAccount 查询账户; 地址未激活时返回 (nil, nil)
	GetAccount(ctx context.Context, addr string) (*Account, error)

	// GetAccountResource 查询账户资源额度
	GetAccountResource(ctx context.Context, addr string) (*AccountResource, error)

	// GetDelegatedResource 查询 from 已代理给 to 的质押量
	GetDelegatedResource(ctx context.Context, from, to string) (*DelegatedResource, error)

	// TransferTRX 构造/签名/广播一笔 TRX 转账，返回 txid
	TransferTRX(ctx context.Context, from, to string, amountSun int64) (string, error)

	// DelegateResource 代理资源给目标地址，返回 txid
	DelegateResource(ctx context.Context, from, to string, balanceSun int64, resource ResourceKind) (string, error)

	// GetReceipt 查询交易回执; 未被索引时返回 Status=ReceiptPending
	GetReceipt(ctx context.Context, txid string) (*Receipt, error)

	// TRC20Balance 查询地址的 TRC20 余额 (按代币精度折算)
	TRC20Balance(ctx context.Context, contract, holder string) (decimal.Decimal, error)

	// TRC20Transfers 查询转入 to 的最近 TRC20 转账事件 (最新在前)
	TRC20Transfers(ctx context.Context, contract, to string, limit int) ([]TransferEvent, error)

	// TRC20Transfer 从 from 转出 TRC20 (资金归集用)，返回 txid
	TRC20Transfer(ctx context.Context, contract, from, to string, amount decimal.Decimal) (string, error)
}
