package doctor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/config"
)

func TestConfigFileCheck(t *testing.T) {
	cfg := config.Default()
	res := configFileCheck{}.Run(cfg)
	assert.Equal(t, StatusOK, res.Status)

	cfg.Daemon.DataDir = ""
	res = configFileCheck{}.Run(cfg)
	assert.Equal(t, StatusError, res.Status)
}

func TestDataDirCheckWritable(t *testing.T) {
	cfg := config.Default()
	cfg.Daemon.DataDir = t.TempDir()
	res := dataDirCheck{}.Run(cfg)
	assert.Equal(t, StatusOK, res.Status)
}

func TestBinaryOnPathCheckOptionalWarnsNotErrors(t *testing.T) {
	c := binaryOnPathCheck{name: "nope", binary: "tmux-agents-definitely-not-a-real-binary", optional: true}
	res := c.Run(config.Config{})
	assert.Equal(t, StatusWarning, res.Status)
}

func TestBinaryOnPathCheckRequiredErrors(t *testing.T) {
	c := binaryOnPathCheck{name: "nope", binary: "tmux-agents-definitely-not-a-real-binary"}
	res := c.Run(config.Config{})
	assert.Equal(t, StatusError, res.Status)
}

func TestDoctorRunAggregates(t *testing.T) {
	d := &Doctor{}
	d.Register(fixedCheck{name: "a", result: Result{Status: StatusOK}})
	d.Register(fixedCheck{name: "b", result: Result{Status: StatusWarning}})
	d.Register(fixedCheck{name: "c", result: Result{Status: StatusError}})

	report := d.Run(config.Default())
	require.Len(t, report.Checks, 3)
	assert.Equal(t, 1, report.OK)
	assert.Equal(t, 1, report.Warn)
	assert.Equal(t, 1, report.Errors)
	assert.False(t, report.Healthy())
}

func TestReportHealthyWithNoErrors(t *testing.T) {
	d := &Doctor{}
	d.Register(fixedCheck{name: "a", result: Result{Status: StatusOK}})
	report := d.Run(config.Default())
	assert.True(t, report.Healthy())
}

type fixedCheck struct {
	name   string
	result Result
}

func (f fixedCheck) Name() string { return f.name }

func (f fixedCheck) Run(config.Config) Result { return f.result }
