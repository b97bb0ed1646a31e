// Package jwttoken issues and checks the HS256 bearer tokens that identify
// end users. The chat front end signs tokens with the shared key; the subject
// carries the numeric user id.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	authmw "verigate/pkg/platform/middleware/auth"
)

// leeway absorbs clock skew between the front end and this service.
const leeway = 30 * time.Second

// Claims accepts the user id in "sub" and, for older front ends, "user_id".
type Claims struct {
	LegacyUserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the user id claim, preferring "sub".
func (c *Claims) UserID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.LegacyUserID
}

type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	parser     *jwt.Parser
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
	}
}

// GenerateAccessToken issues a token for userID. Operators and tests use it;
// end users get theirs from the front end.
func (s *JWTService) GenerateAccessToken(userID id.UserID, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

func (s *JWTService) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	case claims.UserID() == "":
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return claims, nil
}

// ValidateToken satisfies authmw.JWTValidator.
func (s *JWTService) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{UserID: claims.UserID(), JTI: claims.ID}, nil
}
