package identity

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/wtxsocial/chatcore/internal/types"
)

// TokenProvider authenticates requests with an HMAC-signed jwt issued by
// the account service. The token is read from the "token" cookie, or
// from a bearer Authorization header for non-browser clients.
type TokenProvider struct {
	signingKey []byte
}

func NewTokenProvider(signingKey []byte) *TokenProvider {
	return &TokenProvider{signingKey: signingKey}
}

func (p *TokenProvider) PrincipalFromRequest(r *http.Request) (types.Principal, error) {
	raw, err := tokenFromRequest(r)
	if err != nil {
		return types.Principal{}, err
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.signingKey, nil
	})
	if err != nil {
		return types.Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return types.Principal{}, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}

	return principalFromClaims(claims)
}

func tokenFromRequest(r *http.Request) (string, error) {
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer "), nil
	}

	return "", fmt.Errorf("%w: no token in request", ErrUnauthenticated)
}

func principalFromClaims(claims jwt.MapClaims) (types.Principal, error) {
	userId, ok := claims["user-id"].(float64)
	if !ok {
		return types.Principal{}, fmt.Errorf("%w: missing user-id claim", ErrUnauthenticated)
	}

	username, ok := claims["username"].(string)
	if !ok || username == "" {
		return types.Principal{}, fmt.Errorf("%w: missing username claim", ErrUnauthenticated)
	}

	p := types.Principal{
		Id:       int64(userId),
		Username: username,
		Role:     types.RoleUser,
	}

	if nickname, ok := claims["nickname"].(string); ok {
		p.Nickname = nickname
	}
	if color, ok := claims["color"].(string); ok {
		p.Color = color
	}
	if badge, ok := claims["badge"].(string); ok {
		p.Badge = badge
	}
	if role, ok := claims["role"].(string); ok && role != "" {
		p.Role = role
	}

	return p, nil
}
