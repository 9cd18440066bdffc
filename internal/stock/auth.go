package stock

import (
	"context"
	"sync"

	"github.com/stocky-devel/stocky/internal/monitoring"
)

// Auth records which user is logged in. With a nil Users map any non-empty
// username is accepted; otherwise the password must match.
type Auth struct {
	Users map[string]string

	mu   sync.Mutex
	user string
}

func (a *Auth) Login(_ context.Context, username, password string) (bool, string) {
	if username == "" {
		return false, "username required"
	}
	if a.Users != nil {
		if want, ok := a.Users[username]; !ok || want != password {
			monitoring.Warnf("login refused for %q", username)
			return false, "invalid username or password"
		}
	}
	a.mu.Lock()
	a.user = username
	a.mu.Unlock()
	monitoring.Infof("user %q logged in", username)
	return true, "logged in as " + username
}

func (a *Auth) Logout(context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user != "" {
		monitoring.Infof("user %q logged out", a.user)
	}
	a.user = ""
}

// User returns the logged in user, or "" when nobody is.
func (a *Auth) User() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user
}
