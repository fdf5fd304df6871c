//go:build linux

package power

import (
	"errors"
	"log/slog"
	"os/exec"
)

// newPlatformInhibitor shells out to systemd-inhibit, which holds idle and
// sleep locks until the child it spawns exits.
func newPlatformInhibitor(logger *slog.Logger) Inhibitor {
	path, err := exec.LookPath("systemd-inhibit")
	if err != nil {
		logger.Warn("systemd-inhibit not found, sleep inhibition disabled")
		return noopInhibitor{}
	}
	p := &processInhibitor{logger: logger}
	p.start = func() (func() error, error) {
		cmd := exec.Command(path,
			"--what=idle:sleep",
			"--who=magnetcast",
			"--why=streaming media",
			"--mode=block",
			"sleep", "infinity")
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
