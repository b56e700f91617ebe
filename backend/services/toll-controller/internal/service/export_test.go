package service

import "time"

// SetTokenClock overrides the token service clock.
func SetTokenClock(t *TokenService, now func() time.Time) {
	t.now = now
}
