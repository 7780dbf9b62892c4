package remote

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// checkToken fails fast with ErrUnauthorized when the bearer token is a JWT
// whose exp claim has passed. Opaque tokens are left to the server.
func checkToken(token string, now time.Time) error {
	if token == "" {
		return ErrUnauthorized
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("%w: bad exp claim: %v", ErrUnauthorized, err)
	}
	if exp != nil && !now.Before(exp.Time) {
		return fmt.Errorf("%w: token expired at %s", ErrUnauthorized, exp.Time.Format(time.RFC3339))
	}
	return nil
}
