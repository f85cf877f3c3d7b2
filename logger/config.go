package logger

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/swiftstack/pfsreader/conf"
)

var debugLevelEnabled = false
var logFile *os.File = nil
var traceLevelEnabled = false

// Up configures logging from the [Logging] section of confMap:
//
//	LogFilePath    - file to append logs to ("" or absent means no file sink)
//	LogToConsole   - whether to (also) log to stderr (default false, but
//	                 defaults to true if no LogFilePath was provided)
//	DebugLogging   - enable Debugf() logs (default false)
//	TraceLogging   - enable Tracef() logs (default false)
func Up(confMap conf.ConfMap) (err error) {
	var (
		logFilePath  string
		logToConsole bool
		writers      []io.Writer
	)

	log.SetFormatter(&log.TextFormatter{DisableColors: true})

	logFilePath, _ = confMap.FetchOptionValueString("Logging", "LogFilePath")
	if "" != logFilePath {
		logFile, err = os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if nil != err {
			log.Errorf("couldn't open log file: %v", err)
			return
		}
		writers = append(writers, logFile)
	}

	logToConsole, err = confMap.FetchOptionValueBool("Logging", "LogToConsole")
	if nil != err {
		logToConsole = ("" == logFilePath)
		err = nil
	}
	if logToConsole {
		writers = append(writers, os.Stderr)
	}

	if 0 == len(writers) {
		writers = append(writers, os.Stderr)
	}

	log.SetOutput(io.MultiWriter(writers...))

	// Always enable max logging in logrus; whether a Debugf()/Tracef() call
	// actually logs is decided in this package.
	log.SetLevel(log.DebugLevel)

	debugLevelEnabled, _ = confMap.FetchOptionValueBool("Logging", "DebugLogging")
	traceLevelEnabled, _ = confMap.FetchOptionValueBool("Logging", "TraceLogging")

	err = nil
	return
}

// Down stops logging to the log file, if any.
func Down() (err error) {
	if nil != logFile {
		_ = logFile.Close()
		logFile = nil
	}
	err = nil
	return
}
