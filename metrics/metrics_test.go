package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.RecordAction("forward", "configuration")
	p.RecordAction("forward", "configuration")
	p.RecordDecodeError("")
	p.RecordScript("./check", 20*time.Millisecond, true)
	p.RecordScript("./check", 10*time.Millisecond, false)
	p.RecordPublish(false)
	p.RecordPublish(true)
	p.RecordTransition("configuration", "init")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.actions.WithLabelValues("forward", "configuration")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.decodeErrors.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.scriptFailures.WithLabelValues("./check")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.publishes.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.transitions.WithLabelValues("configuration", "init")))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.Len(t, families, 6)
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordAction("done", "")
	r.RecordPublish(true)
}
