package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sponsor-core/internal/model"
)

// RequestStore 核心组件对请求表的全部访问面
// 特意收窄: 状态只能通过 CAS 推进，流水只能追加，保证状态机单调
type RequestStore interface {
	Get(ctx context.Context, id uint64) (*model.PaymentRequest, error)

	// ListByStatus 按状态取一批请求 (老的在前)
	ListByStatus(ctx context.Context, status string, limit int) ([]model.PaymentRequest, error)

	// ListStale 取指定状态下、updated_at 早于 before 的请求
	ListStale(ctx context.Context, status string, before time.Time, limit int) ([]model.PaymentRequest, error)

	// CASStatus 单条原子的 read-and-set: 仅当当前状态在 from 里才改为 to
	// 返回是否真的改到了，这是请求级并发互斥的唯一凭据
	CASStatus(ctx context.Context, id uint64, from []string, to string) (bool, error)

	// RequeueActivating 将卡住的 activating 回退为 pending 并累加重试计数
	RequeueActivating(ctx context.Context, id uint64) (bool, error)

	// AppendTransfer 追加一条入账流水; 同一 tx_id 重复写入时返回 false 且不报错
	AppendTransfer(ctx context.Context, rec *model.TransferRecord) (bool, error)

	// SumTransfers 请求已匹配到的入账总额
	SumTransfers(ctx context.Context, requestID uint64) (decimal.Decimal, error)

	// CountByStatus 各状态的请求数量 (监控用)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// GormStore 基于 gorm 的实现
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, id uint64) (*model.PaymentRequest, error) {
	var req model.PaymentRequest
	if err := s.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *GormStore) ListByStatus(ctx context.Context, status string, limit int) ([]model.PaymentRequest, error) {
	var reqs []model.PaymentRequest
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id asc").
		Limit(limit).
		Find(&reqs).Error
	return reqs, err
}

func (s *GormStore) ListStale(ctx context.Context, status string, before time.Time, limit int) ([]model.PaymentRequest, error) {
	var reqs []model.PaymentRequest
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, before).
		Order("id asc").
		Limit(limit).
		Find(&reqs).Error
	return reqs, err
}

func (s *GormStore) CASStatus(ctx context.Context, id uint64, from []string, to string) (bool, error) {
	// UPDATE ... WHERE id = ? AND status IN (?)，单条语句，天然原子
	res := s.db.WithContext(ctx).
		Model(&model.PaymentRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) RequeueActivating(ctx context.Context, id uint64) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.PaymentRequest{}).
		Where("id = ? AND status = ?", id, model.StatusActivating).
		Updates(map[string]interface{}{
			"status":          model.StatusPending,
			"sponsor_retries": gorm.Expr("sponsor_retries + 1"),
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) AppendTransfer(ctx context.Context, rec *model.TransferRecord) (bool, error) {
	// ON CONFLICT (tx_id) DO NOTHING: 重复事件静默吞掉，流水只增
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tx_id"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) SumTransfers(ctx context.Context, requestID uint64) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := s.db.WithContext(ctx).
		Model(&model.TransferRecord{}).
		Where("request_id = ?", requestID).
		Select("SUM(amount)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func (s *GormStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&model.PaymentRequest{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
