package recovery

import (
	"fmt"
	"runtime/debug"

	"github.com/getsentry/sentry-go"

	"github.com/timebankhq/timebank-go/shared/logging"
)

// Guard runs fn and swallows any panic it raises. Panics are logged and
// reported to Sentry; they never reach the hosting application. Inbound
// frame handlers and notification callbacks run under a Guard so a bad
// payload cannot take the connection or the process down with it.
func Guard(log *logging.Logger, scope string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			if log != nil {
				log.WithField("scope", scope).
					WithField("recovered", fmt.Sprintf("%v", r)).
					Error("recovered from panic")
			}
			if sentry.CurrentHub().Client() != nil {
				sentry.WithScope(func(s *sentry.Scope) {
					s.SetLevel(sentry.LevelError)
					s.SetContext("panic", map[string]interface{}{
						"scope":     scope,
						"recovered": r,
						"stack":     string(stack),
					})
					sentry.CaptureException(fmt.Errorf("panic in %s: %v", scope, r))
				})
			}
		}
	}()

	fn()
}

// SafeGo runs fn in a goroutine guarded against panics.
func SafeGo(log *logging.Logger, scope string, fn func()) {
	go Guard(log, scope, fn)
}
