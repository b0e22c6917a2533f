package pipreader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/open-control-systems/card-detector/components/action/actexec"
	"github.com/open-control-systems/card-detector/components/core"
	"github.com/open-control-systems/card-detector/components/reader/rdcore"
	"github.com/open-control-systems/card-detector/components/reader/rdpcsc"
	"github.com/open-control-systems/card-detector/components/status"
	"github.com/open-control-systems/card-detector/components/system/syspower"
	"github.com/open-control-systems/card-detector/components/system/syssched"
)

// ReaderPipelineParams provides various configuration options for ReaderPipeline.
type ReaderPipelineParams struct {
	// Commands - actions launched on card insertion and removal.
	Commands actexec.Commands

	// RecoveryInterval - how often to restart the faulted reader monitor,
	// zero disables recovery.
	RecoveryInterval time.Duration

	// PollInterval - how often to re-list readers if the reader list change
	// notification isn't delivered.
	PollInterval time.Duration
}

// ReaderPipelineBackend provides the OS facing collaborators for ReaderPipeline.
type ReaderPipelineBackend struct {
	// ContextFactory - to establish PC/SC contexts.
	ContextFactory rdpcsc.ContextFactory

	// Registrar - to subscribe for the OS power notifications.
	Registrar syspower.Registrar

	// Runner - to launch the actions.
	Runner actexec.Runner
}

// SystemBackend returns collaborators backed by the PC/SC service and the OS.
func SystemBackend() ReaderPipelineBackend {
	return ReaderPipelineBackend{
		ContextFactory: rdpcsc.EstablishContext,
		Registrar:      syspower.NewSystemRegistrar(),
		Runner:         &actexec.ProcessRunner{},
	}
}

// ReaderPipeline watches card readers and fires an action per card insertion and removal.
//
// Remarks:
//   - Monitoring is stopped once the parent context is cancelled.
//   - Suspend and resume of the host are followed when the OS supports it.
type ReaderPipeline struct {
	ctx         context.Context
	dispatcher  *actexec.Dispatcher
	coordinator *rdcore.Coordinator
	hook        *syspower.Hook
	recovery    *syssched.AsyncTaskRunner
	doneCh      chan struct{}

	mu      sync.Mutex
	started bool
}

// NewReaderPipeline initializes the reader pipeline.
//
// Parameters:
//   - ctx - parent context, monitoring is stopped when it's cancelled.
//   - closer - to register all resources that should be closed.
//   - backend - OS facing collaborators.
//   - params - various pipeline parameters.
func NewReaderPipeline(
	ctx context.Context,
	closer *core.FanoutCloser,
	backend ReaderPipelineBackend,
	params ReaderPipelineParams,
) *ReaderPipeline {
	dispatcher := actexec.NewDispatcher(backend.Runner, params.Commands)

	coordinator := rdcore.NewCoordinator(rdcore.CoordinatorParams{
		WatcherFactory: rdpcsc.NewDeviceWatcherFactory(
			backend.ContextFactory,
			rdpcsc.DeviceWatcherParams{
				PollInterval: params.PollInterval,
			},
		),
		MonitorFactory: rdpcsc.NewMonitorFactory(backend.ContextFactory),
		Enumerator:     rdpcsc.NewEnumerator(backend.ContextFactory),
		Dispatcher:     dispatcher,
	})

	hook := syspower.NewHook(backend.Registrar, coordinator)

	var recovery *syssched.AsyncTaskRunner
	if params.RecoveryInterval > 0 {
		recovery = syssched.NewAsyncTaskRunner(
			ctx,
			coordinator.Manager(),
			&core.LogErrorHandler{Prefix: "reader-pipeline: failed to recover monitor"},
			syssched.AsyncTaskRunnerParams{
				UpdateInterval: params.RecoveryInterval,
			},
		)
	}

	pipeline := &ReaderPipeline{
		ctx:         ctx,
		dispatcher:  dispatcher,
		coordinator: coordinator,
		hook:        hook,
		recovery:    recovery,
		doneCh:      make(chan struct{}),
	}
	closer.Add("reader-pipeline", pipeline)

	return pipeline
}

// Start registers for the power notifications and starts monitoring.
func (p *ReaderPipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return status.StatusInvalidState
	}

	if err := p.hook.Register(); err != nil {
		if errors.Is(err, status.StatusNotSupported) {
			core.LogInf.Println("reader-pipeline: power notifications aren't supported")
		} else {
			core.LogWrn.Printf("reader-pipeline: continue without power notifications: %v\n", err)
		}
	}

	if err := p.coordinator.StartMonitoring(); err != nil {
		if err := p.hook.Unregister(); err != nil {
			core.LogWrn.Printf("reader-pipeline: %v\n", err)
		}

		return fmt.Errorf("reader-pipeline: failed to start monitoring: %w", err)
	}

	if p.recovery != nil {
		if err := p.recovery.Start(); err != nil {
			core.LogWrn.Printf("reader-pipeline: failed to start monitor recovery: %v\n", err)
		}
	}

	p.started = true

	go p.run()

	return nil
}

// SetCommands replaces the actions for the next card events.
func (p *ReaderPipeline) SetCommands(commands actexec.Commands) {
	p.dispatcher.SetCommands(commands)
}

// Coordinator returns the reader coordinator.
func (p *ReaderPipeline) Coordinator() *rdcore.Coordinator {
	return p.coordinator
}

// Close waits for the pipeline to stop.
//
// Remarks:
//   - The pipeline stops when the parent context is cancelled.
func (p *ReaderPipeline) Close() error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	core.LogInf.Println("reader-pipeline: stopping")
	<-p.doneCh
	core.LogInf.Println("reader-pipeline: stopped")

	return nil
}

func (p *ReaderPipeline) run() {
	defer close(p.doneCh)

	<-p.ctx.Done()

	if p.recovery != nil {
		if err := p.recovery.Stop(); err != nil {
			core.LogWrn.Printf("reader-pipeline: failed to stop monitor recovery: %v\n", err)
		}
	}

	// Unregistered first, a late resume must not restart monitoring.
	if err := p.hook.Unregister(); err != nil {
		core.LogWrn.Printf("reader-pipeline: %v\n", err)
	}

	if err := p.coordinator.StopMonitoring(); err != nil {
		core.LogWrn.Printf("reader-pipeline: %v\n", err)
	}
}
