package engine

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

func (e *Engine) hashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), e.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("engine: hash password: %w", err)
	}
	return hash, nil
}

// checkPassword reports whether password matches the stored bcrypt hash.
// A mismatch is a normal outcome, not an error.
func checkPassword(hash []byte, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("engine: compare password: %w", err)
	}
}
