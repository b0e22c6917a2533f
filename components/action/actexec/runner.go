package actexec

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/open-control-systems/card-detector/components/core"
)

// Runner launches external processes.
type Runner interface {
	// Run launches the process without waiting for it to finish.
	Run(name string, args []string, env []string) error
}

// ProcessRunner launches detached child processes.
//
// Remarks:
//   - The child is reaped in the standalone goroutine.
//   - The child inherits the environment of the current process.
type ProcessRunner struct{}

// Run launches the process.
func (*ProcessRunner) Run(name string, args []string, env []string) error {
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), env...)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}

	pid := cmd.Process.Pid

	go func() {
		if err := cmd.Wait(); err != nil {
			core.LogWrn.Printf("action-runner: process exited: pid=%d err=%v\n", pid, err)
		} else {
			core.LogDbg.Printf("action-runner: process exited: pid=%d\n", pid)
		}
	}()

	return nil
}
