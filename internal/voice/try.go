package voice

import "log/slog"

// tryOrIgnore runs fn and logs a failure at debug level. Audio graph
// operations on a voice that is already gone are expected to fail.
func tryOrIgnore(logger *slog.Logger, op string, fn func() error) {
	if err := fn(); err != nil {
		logger.Debug("voice: ignored", "op", op, "err", err)
	}
}
