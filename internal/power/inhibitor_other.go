//go:build !linux && !darwin

package power

import "log/slog"

func newPlatformInhibitor(logger *slog.Logger) Inhibitor {
	logger.Warn("sleep inhibition not supported on this platform")
	return noopInhibitor{}
}
