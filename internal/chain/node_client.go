package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"sponsor-core/pkg/logger"

	"go.uber.org/zap"
)

// NodeClient 通过 TRON 全节点 HTTP API 实现 Client 接口
// 所有请求使用 visible=true，地址统一走 Base58，避免到处转十六进制
//
// 签名说明: 这里通过节点的 gettransactionsign 完成签名，私钥只应配置在
// 私有节点部署里。生产环境应替换为独立签名服务 (接口不变)。
type NodeClient struct {
	baseURL string
	apiKey  string
	http    *http.Client

	// 地址 -> 私钥 (hex)。密钥由部署侧注入；地址派生在外部钱包服务
	keys       map[string]string
	defaultKey string

	// TRC20 代币精度 (USDT = 6)
	tokenDecimals int32
}

type NodeClientOptions struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	DefaultKey    string
	Keys          map[string]string
	TokenDecimals int32
}

func NewNodeClient(opts NodeClientOptions) *NodeClient {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.TokenDecimals == 0 {
		opts.TokenDecimals = 6
	}
	return &NodeClient{
		baseURL:       opts.BaseURL,
		apiKey:        opts.APIKey,
		http:          &http.Client{Timeout: opts.Timeout},
		keys:          opts.Keys,
		defaultKey:    opts.DefaultKey,
		tokenDecimals: opts.TokenDecimals,
	}
}

// post 发送 JSON 请求并解码响应
func (c *NodeClient) post(ctx context.Context, path string, reqBody interface{}, out interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("节点请求失败 %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("节点返回 %d (%s): %s", resp.StatusCode, path, string(body))
	}
	return json.Unmarshal(body, out)
}

func (c *NodeClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("节点请求失败 %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("节点返回 %d (%s): %s", resp.StatusCode, path, string(body))
	}
	return json.Unmarshal(body, out)
}

// ---------- 查询 ----------

type rawAccount struct {
	Address    string `json:"address"`
	Balance    int64  `json:"balance"`
	CreateTime int64  `json:"create_time"`
	FrozenV2   []struct {
		Type   string `json:"type"`
		Amount int64  `json:"amount"`
	} `json:"frozenV2"`
}

func (c *NodeClient) GetAccount(ctx context.Context, addr string) (*Account, error) {
	var raw rawAccount
	err := c.post(ctx, "/wallet/getaccount", map[string]interface{}{
		"address": addr,
		"visible": true,
	}, &raw)
	if err != nil {
		return nil, err
	}

	// 节点对不存在的账户返回空对象，即未激活
	if raw.Address == "" {
		return nil, nil
	}

	acct := &Account{
		Address:    raw.Address,
		BalanceSun: raw.Balance,
		CreateTime: time.UnixMilli(raw.CreateTime),
	}
	for _, f := range raw.FrozenV2 {
		acct.Frozen = append(acct.Frozen, StakeEntry{Type: f.Type, AmountSun: f.Amount})
	}
	return acct, nil
}

func (c *NodeClient) GetAccountResource(ctx context.Context, addr string) (*AccountResource, error) {
	var raw struct {
		FreeNetLimit      int64 `json:"freeNetLimit"`
		FreeNetUsed       int64 `json:"freeNetUsed"`
		NetLimit          int64 `json:"NetLimit"`
		NetUsed           int64 `json:"NetUsed"`
		EnergyLimit       int64 `json:"EnergyLimit"`
		EnergyUsed        int64 `json:"EnergyUsed"`
		TotalNetLimit     int64 `json:"TotalNetLimit"`
		TotalNetWeight    int64 `json:"TotalNetWeight"`
		TotalEnergyLimit  int64 `json:"TotalEnergyLimit"`
		TotalEnergyWeight int64 `json:"TotalEnergyWeight"`
	}
	err := c.post(ctx, "/wallet/getaccountresource", map[string]interface{}{
		"address": addr,
		"visible": true,
	}, &raw)
	if err != nil {
		return nil, err
	}
	return &AccountResource{
		FreeNetLimit:      raw.FreeNetLimit,
		FreeNetUsed:       raw.FreeNetUsed,
		NetLimit:          raw.NetLimit,
		NetUsed:           raw.NetUsed,
		EnergyLimit:       raw.EnergyLimit,
		EnergyUsed:        raw.EnergyUsed,
		TotalNetLimit:     raw.TotalNetLimit,
		TotalNetWeight:    raw.TotalNetWeight,
		TotalEnergyLimit:  raw.TotalEnergyLimit,
		TotalEnergyWeight: raw.TotalEnergyWeight,
	}, nil
}

func (c *NodeClient) GetDelegatedResource(ctx context.Context, from, to string) (*DelegatedResource, error) {
	var raw struct {
		DelegatedResource []struct {
			FrozenBalanceForEnergy    int64 `json:"frozen_balance_for_energy"`
			FrozenBalanceForBandwidth int64 `json:"frozen_balance_for_bandwidth"`
		} `json:"delegatedResource"`
	}
	err := c.post(ctx, "/wallet/getdelegatedresourcev2", map[string]interface{}{
		"fromAddress": from,
		"toAddress":   to,
		"visible":     true,
	}, &raw)
	if err != nil {
		return nil, err
	}

	out := &DelegatedResource{}
	for _, d := range raw.DelegatedResource {
		out.EnergySun += d.FrozenBalanceForEnergy
		out.BandwidthSun += d.FrozenBalanceForBandwidth
	}
	return out, nil
}

func (c *NodeClient) GetReceipt(ctx context.Context, txid string) (*Receipt, error) {
	var raw struct {
		ID          string `json:"id"`
		BlockNumber int64  `json:"blockNumber"`
		Result      string `json:"result"` // 仅失败时出现 "FAILED"
		ResMessage  string `json:"resMessage"`
		Receipt     struct {
			Result string `json:"result"` // 合约交易: SUCCESS / REVERT / OUT_OF_ENERGY ...
		} `json:"receipt"`
	}
	err := c.post(ctx, "/wallet/gettransactioninfobyid", map[string]interface{}{
		"value": txid,
	}, &raw)
	if err != nil {
		return nil, err
	}

	// 空对象 = 节点尚未索引到该交易
	if raw.ID == "" {
		return &Receipt{TxID: txid, Status: ReceiptPending}, nil
	}

	r := &Receipt{TxID: raw.ID, BlockNumber: raw.BlockNumber, Message: raw.ResMessage}
	switch {
	case raw.Result == "FAILED":
		r.Status = ReceiptFailed
	case raw.Receipt.Result != "" && raw.Receipt.Result != "SUCCESS":
		r.Status = ReceiptFailed
		r.Message = raw.Receipt.Result
	default:
		r.Status = ReceiptSuccess
	}
	return r, nil
}

// ---------- 交易 ----------

// signAndBroadcast 对节点构造的裸交易签名并广播
func (c *NodeClient) signAndBroadcast(ctx context.Context, owner string, rawTx json.RawMessage) (string, error) {
	key := c.defaultKey
	if k, ok := c.keys[owner]; ok {
		key = k
	}
	if key == "" {
		return "", fmt.Errorf("没有 %s 的签名密钥", owner)
	}

	var signed json.RawMessage
	err := c.post(ctx, "/wallet/gettransactionsign", map[string]interface{}{
		"transaction": rawTx,
		"privateKey":  key,
	}, &signed)
	if err != nil {
		return "", fmt.Errorf("签名失败: %w", err)
	}

	var result struct {
		Result  bool   `json:"result"`
		TxID    string `json:"txid"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/wallet/broadcasttransaction", signed, &result); err != nil {
		return "", fmt.Errorf("广播失败: %w", err)
	}
	if !result.Result {
		return "", fmt.Errorf("广播被拒绝: %s %s", result.Code, result.Message)
	}
	return result.TxID, nil
}

// rawTxEnvelope 构造类接口的通用返回: 裸交易本身加可能的错误
type rawTxEnvelope struct {
	TxID  string `json:"txID"`
	Error string `json:"Error"`
}

func decodeRawTx(data json.RawMessage) (json.RawMessage, error) {
	var env rawTxEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Error != "" {
		return nil, fmt.Errorf("构造交易失败: %s", env.Error)
	}
	if env.TxID == "" {
		return nil, fmt.Errorf("构造交易失败: 节点未返回 txID")
	}
	return data, nil
}

func (c *NodeClient) TransferTRX(ctx context.Context, from, to string, amountSun int64) (string, error) {
	var raw json.RawMessage
	err := c.post(ctx, "/wallet/createtransaction", map[string]interface{}{
		"owner_address": from,
		"to_address":    to,
		"amount":        amountSun,
		"visible":       true,
	}, &raw)
	if err != nil {
		return "", err
	}
	tx, err := decodeRawTx(raw)
	if err != nil {
		return "", err
	}
	return c.signAndBroadcast(ctx, from, tx)
}

func (c *NodeClient) DelegateResource(ctx context.Context, from, to string, balanceSun int64, resource ResourceKind) (string, error) {
	var raw json.RawMessage
	err := c.post(ctx, "/wallet/delegateresource", map[string]interface{}{
		"owner_address":    from,
		"receiver_address": to,
		"balance":          balanceSun,
		"resource":         string(resource),
		"lock":             false,
		"visible":          true,
	}, &raw)
	if err != nil {
		return "", err
	}
	tx, err := decodeRawTx(raw)
	if err != nil {
		return "", err
	}
	return c.signAndBroadcast(ctx, from, tx)
}

// ---------- TRC20 ----------

func (c *NodeClient) TRC20Balance(ctx context.Context, contract, holder string) (decimal.Decimal, error) {
	param, err := packBalanceOf(holder)
	if err != nil {
		return decimal.Zero, err
	}

	var raw struct {
		ConstantResult []string `json:"constant_result"`
		Result         struct {
			Result bool `json:"result"`
		} `json:"result"`
	}
	err = c.post(ctx, "/wallet/triggerconstantcontract", map[string]interface{}{
		"owner_address":     holder,
		"contract_address":  contract,
		"function_selector": "balanceOf(address)",
		"parameter":         param,
		"visible":           true,
	}, &raw)
	if err != nil {
		return decimal.Zero, err
	}
	if !raw.Result.Result || len(raw.ConstantResult) == 0 {
		return decimal.Zero, fmt.Errorf("balanceOf 调用失败 (contract=%s)", contract)
	}

	v, err := unpackUint256(raw.ConstantResult[0])
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(v, -c.tokenDecimals), nil
}

func (c *NodeClient) TRC20Transfers(ctx context.Context, contract, to string, limit int) ([]TransferEvent, error) {
	var raw struct {
		Data []struct {
			TransactionID  string `json:"transaction_id"`
			From           string `json:"from"`
			To             string `json:"to"`
			Value          string `json:"value"`
			BlockTimestamp int64  `json:"block_timestamp"`
			TokenInfo      struct {
				Decimals int32 `json:"decimals"`
			} `json:"token_info"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/v1/accounts/%s/transactions/trc20?only_to=true&limit=%d&contract_address=%s", to, limit, contract)
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}

	events := make([]TransferEvent, 0, len(raw.Data))
	for _, d := range raw.Data {
		v, ok := new(big.Int).SetString(d.Value, 10)
		if !ok {
			logger.Warn("[Chain] 无法解析转账金额，跳过该事件",
				zap.String("txid", d.TransactionID), zap.String("value", d.Value))
			continue
		}
		dec := d.TokenInfo.Decimals
		if dec == 0 {
			dec = c.tokenDecimals
		}
		events = append(events, TransferEvent{
			TxID:      d.TransactionID,
			From:      d.From,
			To:        d.To,
			Amount:    decimal.NewFromBigInt(v, -dec),
			BlockTime: time.UnixMilli(d.BlockTimestamp),
		})
	}
	return events, nil
}

func (c *NodeClient) TRC20Transfer(ctx context.Context, contract, from, to string, amount decimal.Decimal) (string, error) {
	units := amount.Shift(c.tokenDecimals).BigInt()
	param, err := packTransfer(to, units)
	if err != nil {
		return "", err
	}

	var raw struct {
		Transaction json.RawMessage `json:"transaction"`
		Result      struct {
			Result  bool   `json:"result"`
			Message string `json:"message"`
		} `json:"result"`
	}
	err = c.post(ctx, "/wallet/triggersmartcontract", map[string]interface{}{
		"owner_address":     from,
		"contract_address":  contract,
		"function_selector": "transfer(address,uint256)",
		"parameter":         param,
		"fee_limit":         int64(30_000_000), // 30 TRX，防止异常合约烧穿
		"call_value":        0,
		"visible":           true,
	}, &raw)
	if err != nil {
		return "", err
	}
	if !raw.Result.Result {
		return "", fmt.Errorf("构造 TRC20 转账失败: %s", raw.Result.Message)
	}
	tx, err := decodeRawTx(raw.Transaction)
	if err != nil {
		return "", err
	}
	return c.signAndBroadcast(ctx, from, tx)
}
