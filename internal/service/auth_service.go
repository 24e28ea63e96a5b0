package service

import (
	"fmt"
	"strings"

	"pagado/internal/models"
)

var (
	ErrNotAllowed  = fmt.Errorf("%w: number is not in the allow-list", ErrAuthorizationDenied)
	ErrNotEntitled = fmt.Errorf("%w: plan does not include AI features", ErrAuthorizationDenied)
)

// AuthorizationGate decides who may use AI extraction. An empty allow-list
// admits every user.
type AuthorizationGate struct {
	allowed    map[string]struct{}
	entitleAll bool
}

func NewAuthorizationGate(authorizedNumbers []string, entitleAll bool) *AuthorizationGate {
	allowed := make(map[string]struct{}, len(authorizedNumbers))
	for _, n := range authorizedNumbers {
		if n = normalizeNumber(n); n != "" {
			allowed[n] = struct{}{}
		}
	}
	return &AuthorizationGate{allowed: allowed, entitleAll: entitleAll}
}

func (g *AuthorizationGate) IsAuthorized(userID string) bool {
	if len(g.allowed) == 0 {
		return true
	}
	_, ok := g.allowed[normalizeNumber(userID)]
	return ok
}

// Entitled reports whether the profile's plan includes AI features.
func (g *AuthorizationGate) Entitled(profile *models.UserProfile) bool {
	return g.entitleAll || (profile != nil && profile.Subscription)
}

// Eligible combines authorization and entitlement.
func (g *AuthorizationGate) Eligible(userID string, profile *models.UserProfile) bool {
	return g.IsAuthorized(userID) && g.Entitled(profile)
}

// Authorize is Eligible with the reason for a denial.
func (g *AuthorizationGate) Authorize(userID string, profile *models.UserProfile) error {
	if !g.IsAuthorized(userID) {
		return ErrNotAllowed
	}
	if !g.Entitled(profile) {
		return ErrNotEntitled
	}
	return nil
}

func normalizeNumber(n string) string {
	n = strings.TrimSpace(n)
	n = strings.TrimPrefix(n, "+")
	return strings.ReplaceAll(n, " ", "")
}
