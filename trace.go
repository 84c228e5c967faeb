package segalloc

import "github.com/sirupsen/logrus"

// trace gates the allocator's structured debug logging. It is false by
// default so the hot allocate/release paths pay nothing; tests flip it on
// with SetTrace to narrate lifecycle events while debugging a failure.
var trace = false

// SetTrace enables or disables debug-level lifecycle logging package-wide.
func SetTrace(on bool) { trace = on }

var log = logrus.New()

func init() {
	log.SetLevel(logrus.WarnLevel)
}

// SetLogger replaces the package's default logger, e.g. to redirect output
// or adjust the level. Passing nil is a no-op.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		return
	}
	log = l
}
