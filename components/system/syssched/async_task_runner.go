package syssched

import (
	"context"
	"sync"
	"time"

	"github.com/open-control-systems/card-detector/components/core"
	"github.com/open-control-systems/card-detector/components/status"
)

// AsyncTaskRunnerParams provides various configuration options for AsyncTaskRunner.
type AsyncTaskRunnerParams struct {
	// UpdateInterval - how often to run the task.
	UpdateInterval time.Duration
}

// AsyncTaskRunner periodically runs task in the standalone goroutine.
type AsyncTaskRunner struct {
	ctx     context.Context
	cancel  context.CancelFunc
	doneCh  chan struct{}
	task    Task
	handler core.ErrorHandler
	params  AsyncTaskRunnerParams

	mu      sync.Mutex
	started bool
}

// NewAsyncTaskRunner is an initialization of AsyncTaskRunner.
//
// Parameters:
//   - ctx - parent context, the runner stops when it's cancelled.
//   - task - task to run periodically.
//   - handler - to handle task errors, can be nil.
//   - params - various runner parameters.
func NewAsyncTaskRunner(
	ctx context.Context,
	task Task,
	handler core.ErrorHandler,
	params AsyncTaskRunnerParams,
) *AsyncTaskRunner {
	ctx, cancel := context.WithCancel(ctx)

	return &AsyncTaskRunner{
		ctx:     ctx,
		cancel:  cancel,
		doneCh:  make(chan struct{}),
		task:    task,
		handler: handler,
		params:  params,
	}
}

// Start begins asynchronous task processing.
func (r *AsyncTaskRunner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return status.StatusInvalidState
	}

	if r.params.UpdateInterval <= 0 {
		return status.StatusNotSupported
	}

	r.started = true

	go r.run()

	return nil
}

// Stop ends asynchronous task processing.
//
// Remarks:
//   - Safe to call if the runner was never started.
func (r *AsyncTaskRunner) Stop() error {
	r.cancel()

	r.mu.Lock()
	started := r.started
	r.mu.Unlock()

	if started {
		<-r.doneCh
	}

	return nil
}

func (r *AsyncTaskRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.params.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runTask()

		case <-r.ctx.Done():
			return
		}
	}
}

func (r *AsyncTaskRunner) runTask() {
	if err := r.task.Run(); err != nil && r.handler != nil {
		r.handler.HandleError(err)
	}
}
