package syssched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-control-systems/card-detector/components/status"
)

type testAsyncTaskRunnerTask struct {
	mu        sync.Mutex
	err       error
	callCount int
}

func (t *testAsyncTaskRunnerTask) Run() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.callCount++

	return t.err
}

func (t *testAsyncTaskRunnerTask) getCallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.callCount
}

func (t *testAsyncTaskRunnerTask) setError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.err = err
}

type testAsyncTaskRunnerErrorHandler struct {
	mu   sync.Mutex
	errs []error
}

func (h *testAsyncTaskRunnerErrorHandler) HandleError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.errs = append(h.errs, err)
}

func (h *testAsyncTaskRunnerErrorHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.errs)
}

func TestAsyncTaskRunnerKeepsRunningOnError(t *testing.T) {
	task := &testAsyncTaskRunnerTask{
		err: status.StatusNotSupported,
	}
	handler := &testAsyncTaskRunnerErrorHandler{}

	runner := NewAsyncTaskRunner(context.Background(), task, handler, AsyncTaskRunnerParams{
		UpdateInterval: time.Millisecond * 20,
	})
	require.Nil(t, runner.Start())

	for task.getCallCount() < 2 {
		time.Sleep(time.Millisecond * 10)
	}

	task.setError(nil)

	callCount := task.getCallCount()
	for task.getCallCount() < callCount+2 {
		time.Sleep(time.Millisecond * 10)
	}

	require.Nil(t, runner.Stop())
	require.GreaterOrEqual(t, handler.count(), 2)
	require.Less(t, handler.count(), task.getCallCount())
}

func TestAsyncTaskRunnerStopOnContextCancel(t *testing.T) {
	task := &testAsyncTaskRunnerTask{}

	ctx, cancel := context.WithCancel(context.Background())

	runner := NewAsyncTaskRunner(ctx, task, nil, AsyncTaskRunnerParams{
		UpdateInterval: time.Millisecond * 20,
	})
	require.Nil(t, runner.Start())

	for task.getCallCount() < 1 {
		time.Sleep(time.Millisecond * 10)
	}

	cancel()
	<-runner.doneCh

	require.Nil(t, runner.Stop())
}

func TestAsyncTaskRunnerStopNoStart(t *testing.T) {
	runner := NewAsyncTaskRunner(context.Background(), &testAsyncTaskRunnerTask{}, nil,
		AsyncTaskRunnerParams{UpdateInterval: time.Second})

	require.Nil(t, runner.Stop())
}

func TestAsyncTaskRunnerStartTwice(t *testing.T) {
	runner := NewAsyncTaskRunner(context.Background(), &testAsyncTaskRunnerTask{}, nil,
		AsyncTaskRunnerParams{UpdateInterval: time.Second})

	require.Nil(t, runner.Start())
	require.Equal(t, status.StatusInvalidState, runner.Start())
	require.Nil(t, runner.Stop())
}

func TestAsyncTaskRunnerZeroInterval(t *testing.T) {
	runner := NewAsyncTaskRunner(context.Background(), &testAsyncTaskRunnerTask{}, nil,
		AsyncTaskRunnerParams{})

	require.Equal(t, status.StatusNotSupported, runner.Start())
	require.Nil(t, runner.Stop())
}
