package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/metrics"
	"github.com/stretchr/testify/assert"
)

func TestMetricsHook_CountsByStatus(t *testing.T) {
	m := metrics.NewRedisMetrics(prometheus.NewRegistry())
	hook := NewMetricsHook(m)
	ctx := context.Background()

	_ = hook.ProcessHook(failing(nil))(ctx, goredis.NewStringCmd(ctx, "get", "k"))
	_ = hook.ProcessHook(failing(goredis.Nil))(ctx, goredis.NewStringCmd(ctx, "get", "k"))
	_ = hook.ProcessHook(failing(errors.New("boom")))(ctx, goredis.NewStatusCmd(ctx, "set", "k", "v"))
	_ = hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error { return nil })(ctx, nil)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("get", "success")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("set", "error")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("pipeline", "success")), 0.001)
}
