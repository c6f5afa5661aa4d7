package middleware

import (
	"github.com/getsentry/sentry-go"
)

// SetSentryUser adds user context to the Sentry scope so auth failures
// and panics carry the acting principal.
func SetSentryUser(userID, email, ip string) {
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: userID, Email: email, IPAddress: ip})
	})
}
