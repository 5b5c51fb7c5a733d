package rtctoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MediaClaims are the claims of a JWT media token.
type MediaClaims struct {
	Channel string `json:"channel"`
	Role    Role   `json:"role"`
	jwt.RegisteredClaims
}

// JWT issues HS256 media tokens for media servers that verify a shared secret.
// Tokens are deterministic for a given issue time.
type JWT struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWT creates a JWT provider.
func NewJWT(secret, issuer string) *JWT {
	return &JWT{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for subject in channel.
func (j *JWT) Issue(channel, subject string, role Role, ttlSeconds int64) (string, error) {
	if len(j.secret) == 0 {
		return "", ErrConfig
	}
	now := j.now()
	claims := MediaClaims{
		Channel: channel,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlSeconds) * time.Second)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("rtctoken: sign jwt: %w", err)
	}
	return token, nil
}

// Verify parses a token issued by this provider.
func (j *JWT) Verify(token string) (*MediaClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &MediaClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*MediaClaims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
