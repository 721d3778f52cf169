package auth

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/jogardn/dtc-configurator/internal/apperr"
)

const (
	minPasswordLength = 6
	// bcrypt only hashes the first 72 bytes and refuses anything longer.
	maxPasswordBytes  = 72
	specialCharacters = `!@#$%^&*(),.?":{}|<>`
)

// CheckPasswordRules returns one field error per violated rule.
func CheckPasswordRules(password string) []apperr.FieldError {
	var errs []apperr.FieldError
	add := func(msg string) {
		errs = append(errs, apperr.FieldError{Field: "password", Message: msg})
	}

	if len([]rune(password)) < minPasswordLength {
		add("Password must be at least 6 characters long")
	}
	if len(password) > maxPasswordBytes {
		add("Password must be at most 72 bytes long")
	}
	if !strings.ContainsFunc(password, unicode.IsDigit) {
		add("Password must contain a number")
	}
	if !strings.ContainsFunc(password, unicode.IsUpper) {
		add("Password must contain an uppercase letter")
	}
	if !strings.ContainsAny(password, specialCharacters) {
		add("Password must contain a special character")
	}
	return errs
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword reports whether password matches hash. A password bcrypt
// cannot hash never matches. Other errors are returned.
func ComparePassword(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return false, nil
	}
	return false, err
}
