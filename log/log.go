/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package log is the server's leveled logger. It mirrors the teacher's own
// approach of a small package-level logger built on the standard library,
// rather than pulling in a structured-logging dependency: spec.md's ambient
// stack never names a specific logging library, so the teacher's own choice
// is carried forward unchanged.
package log

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Level is a logging severity.
type Level int32

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var (
	logger   = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	minLevel int32 = int32(InfoLevel)
)

// SetLevel changes the minimum level that gets printed. Debug logging is
// disabled by default.
func SetLevel(level Level) { atomic.StoreInt32(&minLevel, int32(level)) }

func enabled(level Level) bool { return int32(level) >= atomic.LoadInt32(&minLevel) }

func output(level Level, prefix string, v ...interface{}) {
	if !enabled(level) {
		return
	}
	logger.Output(3, prefix+fmt.Sprintln(v...))
}

func outputf(level Level, prefix, format string, v ...interface{}) {
	if !enabled(level) {
		return
	}
	logger.Output(3, prefix+fmt.Sprintf(format, v...)+"\n")
}

func Debugf(format string, v ...interface{}) { outputf(DebugLevel, "DEBUG ", format, v...) }
func Infof(format string, v ...interface{})  { outputf(InfoLevel, "INFO  ", format, v...) }
func Warnf(format string, v ...interface{})  { outputf(WarnLevel, "WARN  ", format, v...) }
func Errorf(format string, v ...interface{}) { outputf(ErrorLevel, "ERROR ", format, v...) }

// Error logs err at error level, a no-op if err is nil (the common
// "if err := f(); err != nil { log.Error(err) }" call site in this codebase).
func Error(err error) {
	if err == nil {
		return
	}
	output(ErrorLevel, "ERROR ", err)
}

func Fatalf(format string, v ...interface{}) {
	outputf(FatalLevel, "FATAL ", format, v...)
	os.Exit(1)
}
