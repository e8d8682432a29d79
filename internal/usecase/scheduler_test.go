package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentFeed/internal/domain"
)

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunsPipelineOnEachTick(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "https://a.example.com/rss")
	h.fetcher.items["https://a.example.com/rss"] = []domain.CandidateItem{
		candidate("How cities are rethinking public transport", "https://a.example.com/transit"),
	}

	driver := &manualDriver{}
	s := NewScheduler(driver, h.pipeline(), nil)
	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, driver.job)

	driver.job(testNow)
	driver.job(testNow.Add(time.Hour))

	logs, err := h.repo.ListLogs(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, driver.stopped)
}

func TestSchedulerWithoutDriverIsNoop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, nil, nil)
	assert.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))
}
