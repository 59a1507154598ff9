package notifier

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabide/pagecheck/internal/config"
	"github.com/tabide/pagecheck/internal/types"
)

type sent struct {
	to, subject, html, plain string
}

type fakeSender struct {
	sent []sent
	err  error
}

func (f *fakeSender) Send(to, subject, htmlBody, plainBody string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{to, subject, htmlBody, plainBody})
	return nil
}

func result(status types.Status) *types.RunResult {
	now := time.Now()
	return &types.RunResult{
		Name:           "travel-planner",
		BaseURL:        "http://localhost:3000",
		OutputDir:      "verification",
		Status:         status,
		StartedAt:      now,
		FinishedAt:     now.Add(time.Second),
		StepsTotal:     10,
		StepsCompleted: 4,
		Error:          "step 4 (budget): wait: timed out",
	}
}

func TestNotifyFailureSends(t *testing.T) {
	fs := &fakeSender{}
	n, err := New(fs, "qa@example.com")
	require.NoError(t, err)

	require.NoError(t, n.NotifyFailure(result(types.StatusFailed)))
	require.Len(t, fs.sent, 1)
	assert.Equal(t, "qa@example.com", fs.sent[0].to)
	assert.Contains(t, fs.sent[0].subject, "FAILED")
	assert.Contains(t, fs.sent[0].plain, "4 of 10 steps completed")
}

func TestNotifyFailureSkipsPassed(t *testing.T) {
	fs := &fakeSender{}
	n, err := New(fs, "qa@example.com")
	require.NoError(t, err)

	require.NoError(t, n.NotifyFailure(result(types.StatusPassed)))
	assert.Empty(t, fs.sent)
}

func TestNotifyFailureSenderError(t *testing.T) {
	n, err := New(&fakeSender{err: errors.New("connection refused")}, "qa@example.com")
	require.NoError(t, err)

	assert.Error(t, n.NotifyFailure(result(types.StatusFailed)))
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default().Email
	cfg.ToAddr = "qa@example.com"
	n, err := NewFromConfig(cfg)
	require.NoError(t, err)
	assert.NotNil(t, n)

	cfg.Provider = "pigeon"
	_, err = NewFromConfig(cfg)
	assert.Error(t, err)

	cfg = config.Default().Email
	_, err = NewFromConfig(cfg)
	assert.Error(t, err)
}
