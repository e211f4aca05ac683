package session

import (
	"errors"
	"fmt"

	"github.com/quarryline/netsync/internal/config"
	"github.com/quarryline/netsync/internal/protocol"
	"golang.org/x/crypto/bcrypt"
)

// Admission decides whether a peer that sent Hello may join.
type Admission interface {
	Admit(h *protocol.Hello) error
}

// AcceptAll trusts the transport: every peer with an identity is admitted.
type AcceptAll struct{}

func (AcceptAll) Admit(h *protocol.Hello) error {
	if h.Identity == protocol.NoIdentity {
		return fmt.Errorf("%w: missing identity", ErrNotAdmitted)
	}
	return nil
}

// PasswordPolicy admits peers whose Hello carries the shared join password.
type PasswordPolicy struct {
	hash []byte
}

// NewPasswordPolicy builds a policy from a bcrypt hash, or hashes plain when
// no hash is configured.
func NewPasswordPolicy(hash, plain string) (*PasswordPolicy, error) {
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("password hash: %w", err)
		}
		return &PasswordPolicy{hash: []byte(hash)}, nil
	}
	if plain == "" {
		return nil, errors.New("password policy needs a password or password_hash")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &PasswordPolicy{hash: h}, nil
}

func (p *PasswordPolicy) Admit(h *protocol.Hello) error {
	if err := (AcceptAll{}).Admit(h); err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword(p.hash, []byte(h.Password)); err != nil {
		return fmt.Errorf("%w: wrong password", ErrNotAdmitted)
	}
	return nil
}

// NewAdmission builds the policy named by cfg.
func NewAdmission(cfg config.AdmissionConfig) (Admission, error) {
	switch cfg.Policy {
	case "", "accept_all":
		return AcceptAll{}, nil
	case "password":
		return NewPasswordPolicy(cfg.PasswordHash, cfg.Password)
	default:
		return nil, fmt.Errorf("unknown admission policy %q", cfg.Policy)
	}
}
