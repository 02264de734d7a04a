package watcher

import (
	"log/slog"
	"os"
	"time"
)

// WaitStable polls the file size until two consecutive reads agree,
// meaning the writer has finished. It returns false when the file
// vanishes or the size is still moving after maxWait.
func WaitStable(path string, maxWait, poll time.Duration, log *slog.Logger) bool {
	deadline := time.Now().Add(maxWait)
	var prev int64 = -1

	for {
		info, err := os.Stat(path)
		if err != nil {
			log.Warn("file vanished during stability check", slog.String("path", path))
			return false
		}
		size := info.Size()
		if size == prev {
			return true
		}
		prev = size

		if time.Now().After(deadline) {
			log.Error("file never stabilized",
				slog.String("path", path),
				slog.Duration("waited", maxWait))
			return false
		}
		time.Sleep(poll)
	}
}
