// Package logger provides logging wrappers
//
// These wrappers allow us to standardize logging while still using a popular
// logging package. The package is currently implemented on top of the
// sirupsen/logrus package:
//   https://github.com/sirupsen/logrus
//
// The APIs here add package and calling function to all logs.
package logger

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

const errorKey string = "error"
const functionKey string = "function"
const packageKey string = "package"

// newLogEntry returns a logrus entry annotated with the calling package and
// function, determined by walking back skip+2 stack frames.
func newLogEntry(skip int) (entry *log.Entry) {
	var (
		fnName   string
		lastDot  int
		lastSep  int
		pc       uintptr
		pkgDotFn string
		pkgName  string
		ok       bool
	)

	pc, _, _, ok = runtime.Caller(skip + 2)
	if ok {
		pkgDotFn = runtime.FuncForPC(pc).Name()

		lastSep = strings.LastIndex(pkgDotFn, "/")
		lastDot = strings.Index(pkgDotFn[lastSep+1:], ".")
		if (lastSep >= 0) && (lastDot >= 0) {
			pkgName = pkgDotFn[lastSep+1 : lastSep+1+lastDot]
			fnName = pkgDotFn[lastSep+1+lastDot+1:]
		} else {
			pkgName = pkgDotFn
			fnName = "?"
		}
	} else {
		pkgName = "?"
		fnName = "?"
	}

	entry = log.WithFields(log.Fields{packageKey: pkgName, functionKey: fnName})
	return
}

// Debugf logs at Debug level, but only if debug logging is enabled.
func Debugf(format string, args ...interface{}) {
	if !debugLevelEnabled {
		return
	}
	newLogEntry(0).Debugf(format, args...)
}

// Tracef logs at Debug level with a "trace" marker, but only if trace logging
// is enabled.
func Tracef(format string, args ...interface{}) {
	if !traceLevelEnabled {
		return
	}
	newLogEntry(0).Debugf("trace: "+format, args...)
}

// Infof logs at Info level.
func Infof(format string, args ...interface{}) {
	newLogEntry(0).Infof(format, args...)
}

// Warnf logs at Warning level.
func Warnf(format string, args ...interface{}) {
	newLogEntry(0).Warnf(format, args...)
}

// Errorf logs at Error level.
func Errorf(format string, args ...interface{}) {
	newLogEntry(0).Errorf(format, args...)
}

// Fatalf logs at Fatal level and then exits.
func Fatalf(format string, args ...interface{}) {
	newLogEntry(0).Fatalf(format, args...)
}

// PanicfWithError logs at Panic level with the error attached and then panics.
func PanicfWithError(err error, format string, args ...interface{}) {
	entry := newLogEntry(0)
	if nil != err {
		entry = entry.WithField(errorKey, fmt.Sprintf("%v", err))
	}
	entry.Panicf(format, args...)
}

// ErrorWithError logs at Error level with the error attached.
func ErrorWithError(err error, args ...interface{}) {
	entry := newLogEntry(0)
	if nil != err {
		entry = entry.WithField(errorKey, fmt.Sprintf("%v", err))
	}
	entry.Error(args...)
}

// ErrorfWithError logs at Error level with the error attached.
func ErrorfWithError(err error, format string, args ...interface{}) {
	entry := newLogEntry(0)
	if nil != err {
		entry = entry.WithField(errorKey, fmt.Sprintf("%v", err))
	}
	entry.Errorf(format, args...)
}

// WarnfWithError logs at Warning level with the error attached.
func WarnfWithError(err error, format string, args ...interface{}) {
	entry := newLogEntry(0)
	if nil != err {
		entry = entry.WithField(errorKey, fmt.Sprintf("%v", err))
	}
	entry.Warnf(format, args...)
}

// InfofWithError logs at Info level with the error attached.
func InfofWithError(err error, format string, args ...interface{}) {
	entry := newLogEntry(0)
	if nil != err {
		entry = entry.WithField(errorKey, fmt.Sprintf("%v", err))
	}
	entry.Infof(format, args...)
}
