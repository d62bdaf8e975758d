package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sponsor-core/pkg/monitor"
)

// 赞助流程在确认计时里会读 monitor.Business，
// cli 入口必须和 server 一样先完成业务指标初始化
func TestMustSetupInitializesBusinessMetrics(t *testing.T) {
	client, lg := mustSetup()

	require.NotNil(t, monitor.Business)
	assert.NotNil(t, client)
	assert.NotNil(t, lg)

	// 确认计时路径能直接使用，不再依赖 server 侧的 monitor.Init
	assert.NotPanics(t, func() {
		monitor.Business.ConfirmationDuration.WithLabelValues("activation").Observe(0.1)
	})

	// 子命令重复进入初始化不触发重复注册
	assert.NotPanics(t, monitor.InitBusinessMetrics)
}
