package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated indicates a missing or invalid bearer token.
var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier checks HS256 tokens and turns their claims into an Actor.
type Verifier struct {
	secret      []byte
	managerRole string
}

// NewVerifier creates a Verifier. managerRole is the identity provider's role
// name that maps to RoleManager; empty means RoleManager itself.
func NewVerifier(secret, managerRole string) *Verifier {
	if managerRole == "" {
		managerRole = RoleManager
	}
	return &Verifier{secret: []byte(secret), managerRole: managerRole}
}

// Verify parses a raw token and returns the actor it names.
func (v *Verifier) Verify(raw string) (Actor, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return Actor{}, ErrUnauthenticated
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" || sub == SystemActorID {
		return Actor{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}

	actor := Actor{ID: sub}
	if list, ok := claims["roles"].([]any); ok {
		for _, r := range list {
			role, ok := r.(string)
			if !ok {
				continue
			}
			switch role {
			case v.managerRole:
				role = RoleManager
			case RoleManager:
				// Only the configured provider role grants manager rights.
				continue
			}
			actor.Roles = append(actor.Roles, role)
		}
	}
	return actor, nil
}

// Sign issues a token for actor. Used by tests and local tooling.
func (v *Verifier) Sign(actor Actor) (string, error) {
	roles := make([]any, 0, len(actor.Roles))
	for _, r := range actor.Roles {
		if r == RoleManager {
			r = v.managerRole
		}
		roles = append(roles, r)
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   actor.ID,
		"roles": roles,
	})
	return t.SignedString(v.secret)
}
