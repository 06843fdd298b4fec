package kfmt

import "corekernel/kernel"

// Level tags the severity of a diagnostic line emitted via Logf.
type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelPrefix = [...][]byte{
	LevelDebug: []byte("[debug] "),
	LevelInfo:  []byte("[info]  "),
	LevelWarn:  []byte("[warn]  "),
	LevelError: []byte("[error] "),
}

// Logf writes a single leveled diagnostic line to the active output sink (or
// the pre-init ring buffer). There is no serial or syslog backend here, only
// the registered console. No other package in this tree calls it.
func Logf(level Level, format string, args ...interface{}) {
	w := &PrefixWriter{Sink: currentSink(), Prefix: levelPrefix[level]}
	Fprintf(w, format, args...)
}

func currentSink() writerOrNil {
	if outputSink == nil {
		return &preInitLog
	}
	return outputSink
}

// writerOrNil avoids importing io here solely for the type alias.
type writerOrNil = interface {
	Write([]byte) (int, error)
}

func init() {
	kernel.SetLogFunc(Printf)
}
