package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"sponsor-core/internal/handler/response"
	"sponsor-core/internal/ledger"
	"sponsor-core/internal/store"
	"sponsor-core/pkg/errno"
)

// OpsHandler 运维可见性接口: 容量、快照、请求状态
// 这不是业务 API，开票/卖家接口在外部服务里
type OpsHandler struct {
	ledger *ledger.Ledger
	store  store.RequestStore
}

func NewOpsHandler(lg *ledger.Ledger, st store.RequestStore) *OpsHandler {
	return &OpsHandler{ledger: lg, store: st}
}

// GetCapacity 当前可赞助能力与瓶颈
func (h *OpsHandler) GetCapacity(c *gin.Context) {
	capacity, err := h.ledger.DailyCapacity(c.Request.Context())
	if err != nil {
		response.Error(c, errno.ErrLedgerUnavailable)
		return
	}
	response.Success(c, gin.H{
		"tx_capacity":         capacity.TxCapacity,
		"activation_capacity": capacity.ActivationCapacity,
		"bottleneck":          capacity.Bottleneck,
	})
}

// GetSnapshot 赞助账户资源快照 + 质押分类 + 效率诊断
func (h *OpsHandler) GetSnapshot(c *gin.Context) {
	snap, err := h.ledger.Snapshot(c.Request.Context())
	if err != nil {
		response.Error(c, errno.ErrLedgerUnavailable)
		return
	}
	response.Success(c, gin.H{
		"balance_sun": snap.BalanceSun,
		"energy": gin.H{
			"limit":     snap.Energy.Limit,
			"used":      snap.Energy.Used,
			"available": snap.Energy.Available,
		},
		"bandwidth": gin.H{
			"limit":     snap.Bandwidth.Limit,
			"used":      snap.Bandwidth.Used,
			"available": snap.Bandwidth.Available,
		},
		"stakes": gin.H{
			"energy_sun":       snap.Stakes.EnergySun,
			"bandwidth_sun":    snap.Stakes.BandwidthSun,
			"governance_sun":   snap.Stakes.GovernanceSun,
			"unclassified_sun": snap.Stakes.UnclassifiedSun,
		},
		"efficiency": gin.H{
			"energy":    snap.Efficiency.Energy.String(),
			"bandwidth": snap.Efficiency.Bandwidth.String(),
		},
		"taken": snap.Taken,
	})
}

// GetRequest 只读查询单个请求 (排障用)
func (h *OpsHandler) GetRequest(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	req, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, errno.ErrRequestNotFound)
			return
		}
		response.Error(c, errno.ErrDatabase)
		return
	}
	response.Success(c, req)
}
