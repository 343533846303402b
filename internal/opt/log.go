package opt

import "time"

// Logger receives human-readable diagnostics. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

func logf(l Logger, format string, args ...any) {
	if l == nil {
		return
	}
	l.Printf(format, args...)
}

// Timed logs the duration of op when the returned func is called.
func Timed(l Logger, op string) func(errp *error) {
	start := time.Now()
	return func(errp *error) {
		dur := time.Since(start)
		if errp != nil && *errp != nil {
			logf(l, "op=%s dur=%dms err=%v", op, dur.Milliseconds(), *errp)
			return
		}
		logf(l, "op=%s dur=%dms", op, dur.Milliseconds())
	}
}
