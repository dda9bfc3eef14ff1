package rsihost

import "log"

// logf is the package's own diagnostic sink, used only when Config.Verbose
// is set. cmd/rsid redirects the standard logger's output to a rotating
// lumberjack file; library callers embedding this package get stderr by
// default.
func logf(format string, args ...any) {
	log.Printf(format, args...)
}
