package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/fimlm/myidmji/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Claims struct {
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
	IsSuperuser bool   `json:"is_superuser,omitempty"`
	ChurchID    string `json:"church_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates the session tokens issued by the account
// service. Only validation is used when serving traffic.
type JWTManager struct {
	secret []byte
	expiry time.Duration
	issuer string
}

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

func NewJWTManager(secret string, expiry time.Duration, issuer string) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		expiry: expiry,
		issuer: issuer,
	}
}

func (m *JWTManager) Generate(p model.Principal) (string, error) {
	if p.ID == uuid.Nil {
		return "", ErrInvalidToken
	}

	now := time.Now()
	claims := &Claims{
		Email:       p.Email,
		Role:        string(p.Role),
		IsSuperuser: p.IsSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}
	if p.ChurchID != nil {
		claims.ChurchID = p.ChurchID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Principal validates tokenString and returns the caller it describes.
func (m *JWTManager) Principal(tokenString string) (*model.Principal, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	p := &model.Principal{
		ID:          id,
		Email:       claims.Email,
		Role:        NormalizeRole(claims.Role),
		IsSuperuser: claims.IsSuperuser,
	}
	if claims.ChurchID != "" {
		churchID, err := uuid.Parse(claims.ChurchID)
		if err != nil {
			return nil, ErrInvalidToken
		}
		p.ChurchID = &churchID
	}
	return p, nil
}

func TokenFromHeader(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(parts[1]), nil
}
