package operations

import (
	"runtime"
	"strings"
)

type PanicLogger func(funcName string, err any, stack []byte, fields ...map[string]any)

// MakePanicHandler returns a deferred recover hook reporting through logger.
//
//	defer recoverPanic("download", map[string]any{"instance": id})
func MakePanicHandler(logger PanicLogger) func(funcName string, fields ...map[string]any) {
	return func(funcName string, fields ...map[string]any) {
		if err := recover(); err != nil {
			fullStack := make([]byte, 8096)
			n := runtime.Stack(fullStack, false)
			logger(funcName, err, cleanStackTrace(fullStack[:n]), fields...)
		}
	}
}

// LogPanics reports recovered panics at error level on logger.
func LogPanics(logger Logger) PanicLogger {
	logger = NormalizeLogger(logger)
	return func(funcName string, err any, stack []byte, fields ...map[string]any) {
		l := logger
		if len(fields) > 0 && fields[0] != nil {
			l = WithLoggerFields(l, fields[0])
		}
		l.Error("recovered from panic in %s: %v (%T)\n%s", funcName, err, err, stack)
	}
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// drop the panic() call line and its file reference
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}
