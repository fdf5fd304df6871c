//go:build darwin

package power

import (
	"errors"
	"log/slog"
	"os/exec"
)

// newPlatformInhibitor shells out to caffeinate, which prevents idle sleep
// for as long as the process runs.
func newPlatformInhibitor(logger *slog.Logger) Inhibitor {
	path, err := exec.LookPath("caffeinate")
	if err != nil {
		logger.Warn("caffeinate not found, sleep inhibition disabled")
		return noopInhibitor{}
	}
	p := &processInhibitor{logger: logger}
	p.start = func() (func() error, error) {
		cmd := exec.Command(path, "-dims")
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		logger.Info("sleep inhibitor started", slog.Int("pid", cmd.Process.Pid))
		return func() error {
			if err := cmd.Process.Kill(); err != nil {
				return err
			}
			err := cmd.Wait()
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return nil
			}
			return err
		}, nil
	}
	return p
}
