package worker_test

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqicast/aqicast/internal/worker"
)

type reloadCounter struct {
	calls atomic.Int32
	err   error
}

func (r *reloadCounter) reload(context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestDispatcher_ForecastSnapshot(t *testing.T) {
	job, path := newJob(t, fixedService(), 5)
	d := worker.NewDispatcher(job, nil, zerolog.Nop())

	jobType, err := d.Handle(context.Background(), []byte(`{"job_type":"forecast_snapshot"}`))
	require.NoError(t, err)
	assert.Equal(t, worker.JobForecastSnapshot, jobType)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestDispatcher_ModelReload(t *testing.T) {
	job, path := newJob(t, fixedService(), 5)
	counter := &reloadCounter{}
	d := worker.NewDispatcher(job, counter.reload, zerolog.Nop())

	_, err := d.Handle(context.Background(), []byte(`{"job_type":"model_reload"}`))
	require.NoError(t, err)
	assert.Equal(t, int32(1), counter.calls.Load())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "plain reload does not publish")

	_, err = d.Handle(context.Background(), []byte(`{"job_type":"model_reload","snapshot":true}`))
	require.NoError(t, err)
	assert.Equal(t, int32(2), counter.calls.Load())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestDispatcher_ModelReloadFailure(t *testing.T) {
	job, _ := newJob(t, fixedService(), 5)
	counter := &reloadCounter{err: errors.New("bucket unreachable")}
	d := worker.NewDispatcher(job, counter.reload, zerolog.Nop())

	_, err := d.Handle(context.Background(), []byte(`{"job_type":"model_reload","snapshot":true}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")
	assert.Equal(t, int64(0), job.GetMetrics().TotalRuns)
}

func TestDispatcher_ModelReloadWithoutSource(t *testing.T) {
	job, _ := newJob(t, fixedService(), 5)
	d := worker.NewDispatcher(job, nil, zerolog.Nop())

	_, err := d.Handle(context.Background(), []byte(`{"job_type":"model_reload"}`))
	assert.NoError(t, err)
}

func TestDispatcher_HealthCheck(t *testing.T) {
	job, path := newJob(t, fixedService(), 5)
	d := worker.NewDispatcher(job, nil, zerolog.Nop())

	_, err := d.Handle(context.Background(), []byte(`{"job_type":"health_check"}`))
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "health check does not publish")
}

func TestDispatcher_HealthCheckWithoutForecaster(t *testing.T) {
	job, _ := newJob(t, nil, 5)
	d := worker.NewDispatcher(job, nil, zerolog.Nop())

	_, err := d.Handle(context.Background(), []byte(`{"job_type":"health_check"}`))
	assert.ErrorIs(t, err, worker.ErrNoForecaster)
}

func TestDispatcher_UnknownAndMalformed(t *testing.T) {
	job, _ := newJob(t, fixedService(), 5)
	d := worker.NewDispatcher(job, nil, zerolog.Nop())

	jobType, err := d.Handle(context.Background(), []byte(`{"job_type":"provider_refresh"}`))
	assert.ErrorIs(t, err, worker.ErrUnknownJob)
	assert.Equal(t, "provider_refresh", jobType)

	jobType, err = d.Handle(context.Background(), []byte(`not json`))
	require.Error(t, err)
	assert.Empty(t, jobType)
}
