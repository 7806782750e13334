package questionbank

import (
	"log"
	"sync/atomic"
)

var verboseMode atomic.Bool

// SetVerbose turns debugging output on or off for the whole package
func SetVerbose(verbose bool) {
	verboseMode.Store(verbose)
}

// IsVerbose reports whether verbose output is on
func IsVerbose() bool {
	return verboseMode.Load()
}

// VerboseLog logs only when verbose mode is enabled
func VerboseLog(format string, v ...interface{}) {
	if verboseMode.Load() {
		log.Printf(format, v...)
	}
}
