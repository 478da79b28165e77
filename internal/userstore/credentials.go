package userstore

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Password schemes accepted by MatcherFor.
const (
	SchemePlain  = "plain"
	SchemeBcrypt = "bcrypt"
)

// CredentialMatcher owns how passwords are stored and compared.
// Every credential check in the store goes through it, so the scheme can be
// swapped without touching callers.
type CredentialMatcher interface {
	// Prepare turns a supplied password into its stored form.
	Prepare(password string) (string, error)
	// Match reports whether a supplied password matches the stored form.
	Match(stored, supplied string) bool
}

// PlainMatcher stores and compares passwords verbatim.
type PlainMatcher struct{}

func (PlainMatcher) Prepare(password string) (string, error) { return password, nil }

func (PlainMatcher) Match(stored, supplied string) bool { return stored == supplied }

// BcryptMatcher stores bcrypt hashes. The password is pre-hashed with sha256
// so inputs longer than bcrypt's 72 byte limit are not truncated.
type BcryptMatcher struct {
	Cost int
}

func (m BcryptMatcher) Prepare(password string) (string, error) {
	cost := m.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], cost)
	return string(hash), err
}

func (BcryptMatcher) Match(stored, supplied string) bool {
	sum := sha256.Sum256([]byte(supplied))
	return bcrypt.CompareHashAndPassword([]byte(stored), sum[:]) == nil
}

// MatcherFor returns the matcher for a configured scheme name.
func MatcherFor(scheme string) (CredentialMatcher, error) {
	switch scheme {
	case "", SchemePlain:
		return PlainMatcher{}, nil
	case SchemeBcrypt:
		return BcryptMatcher{}, nil
	default:
		return nil, fmt.Errorf("unknown password scheme %q", scheme)
	}
}
