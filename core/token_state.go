package core

import "time"

// TokenRefreshMargin is how far ahead of expiry a token is refreshed. It is
// fixed so clock skew and request latency never hand out a dying token.
const TokenRefreshMargin = 40 * time.Minute

func ResolveTokenState(now time.Time, credential *Credential) TokenState {
	if credential == nil || !credential.HasToken() {
		return TokenStateUnauthorized
	}
	remaining := credential.ExpiresAt.Sub(now)
	switch {
	case remaining <= 0:
		return TokenStateExpired
	case remaining <= TokenRefreshMargin:
		return TokenStateRefreshable
	default:
		return TokenStateValid
	}
}

func ShouldRefresh(now time.Time, credential *Credential) bool {
	state := ResolveTokenState(now, credential)
	return state == TokenStateRefreshable || state == TokenStateExpired
}
