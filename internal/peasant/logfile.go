package peasant

import (
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// maxLogBytes bounds a peasant's captured stdout/stderr before it gets
// rotated out of the way of a fresh run.
const maxLogBytes = 10 * 1024 * 1024

// rotateIfNeeded archives path via lumberjack's Rotate if it has grown
// past maxLogBytes, so a long-lived ticket's peasant log doesn't grow
// without bound across many start/review cycles. The detached child
// writes directly to the raw file descriptor handed to it at spawn
// time (see spawn), not through lumberjack's Write path, so rotation is
// driven here, synchronously, just before a new process is started.
func rotateIfNeeded(path string) {
	info, err := os.Stat(path)
	if err != nil || info.Size() < maxLogBytes {
		return
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    1,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}
	_ = lj.Rotate()
	_ = lj.Close()
}
