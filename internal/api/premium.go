package api

import "context"

// TokenChecker is a PremiumChecker backed by a static token list.
type TokenChecker struct {
	tokens map[string]struct{}
}

// NewTokenChecker builds a checker from configured premium tokens.
func NewTokenChecker(tokens []string) *TokenChecker {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return &TokenChecker{tokens: set}
}

// IsPremium reports whether token is on the configured list.
func (c *TokenChecker) IsPremium(_ context.Context, token string) bool {
	if token == "" {
		return false
	}
	_, ok := c.tokens[token]
	return ok
}
