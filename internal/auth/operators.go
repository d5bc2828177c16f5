package auth

import (
	"sync"

	"github.com/nerrad567/capture-core/internal/infrastructure/config"
)

// Operators checks operator logins against the configured accounts.
type Operators struct {
	hashes map[string]string

	dummyOnce sync.Once
	dummy     string
}

// NewOperators indexes the configured accounts by username.
func NewOperators(accounts []config.OperatorConfig) *Operators {
	o := &Operators{hashes: make(map[string]string, len(accounts))}
	for _, a := range accounts {
		o.hashes[a.Username] = a.PasswordHash
	}
	return o
}

// Len returns the number of configured accounts.
func (o *Operators) Len() int { return len(o.hashes) }

// Authenticate returns ErrInvalidCredentials unless username exists and
// password matches. Unknown usernames are verified against a dummy hash.
func (o *Operators) Authenticate(username, password string) error {
	hash, ok := o.hashes[username]
	if !ok {
		o.dummyOnce.Do(func() { o.dummy, _ = HashPassword("capture-dummy-password") })
		_, _ = VerifyPassword(password, o.dummy)
		return ErrInvalidCredentials
	}
	match, err := VerifyPassword(password, hash)
	if err != nil || !match {
		return ErrInvalidCredentials
	}
	return nil
}
