package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrRateLimited = errors.New("rate limit exceeded")

/*
Service issues and validates the bearer tokens that protect the bridge's
task operations.  Tokens are HMAC-signed JWTs; revocation is tracked in
process, so a revoked token fails validation even before it expires.
*/
type Service struct {
	mu            sync.RWMutex
	issued        map[string]*TokenInfo
	refreshTokens map[string]string
	limiter       *RateLimiter
	signingKey    []byte
	tokenTTL      time.Duration
}

// TokenInfo represents an issued token and its metadata.
type TokenInfo struct {
	Token        string
	ExpiresAt    time.Time
	RefreshToken string
	Subject      string
}

func NewService(signingKey string, requestsPerMinute int64) *Service {
	return &Service{
		issued:        make(map[string]*TokenInfo),
		refreshTokens: make(map[string]string),
		limiter:       NewRateLimiter(requestsPerMinute, time.Minute),
		signingKey:    []byte(signingKey),
		tokenTTL:      time.Hour,
	}
}

func (service *Service) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	return service.signingKey, nil
}

/*
Authenticate validates an Authorization header value.  It enforces the
request rate limit first, then checks the bearer token's signature,
expiry and revocation status.
*/
func (service *Service) Authenticate(authHeader string) error {
	if !service.limiter.Allow() {
		return ErrRateLimited
	}

	if authHeader == "" {
		return fmt.Errorf("missing authorization header")
	}

	tokenStr := authHeader

	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		tokenStr = authHeader[7:]
	}

	token, err := jwt.Parse(tokenStr, service.keyFunc)

	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}

	if !token.Valid {
		return fmt.Errorf("token expired")
	}

	service.mu.RLock()
	_, live := service.issued[tokenStr]
	service.mu.RUnlock()

	if !live {
		return fmt.Errorf("token revoked or unknown")
	}

	return nil
}

// GenerateToken issues a signed token for a subject, paired with a
// longer-lived refresh token.
func (service *Service) GenerateToken(subject string) (*TokenInfo, error) {
	expiresAt := time.Now().Add(service.tokenTTL)

	// jti keeps tokens unique even when minted within the same second
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": expiresAt.Unix(),
		"jti": uuid.New().String(),
	})

	tokenStr, err := token.SignedString(service.signingKey)

	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"jti": uuid.New().String(),
	})

	refreshTokenStr, err := refreshToken.SignedString(service.signingKey)

	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	tokenInfo := &TokenInfo{
		Token:        tokenStr,
		ExpiresAt:    expiresAt,
		RefreshToken: refreshTokenStr,
		Subject:      subject,
	}

	service.mu.Lock()
	service.issued[tokenStr] = tokenInfo
	service.refreshTokens[refreshTokenStr] = tokenStr
	service.mu.Unlock()

	return tokenInfo, nil
}

// RefreshToken exchanges a refresh token for a fresh token pair and
// retires the old pair.
func (service *Service) RefreshToken(refreshToken string) (*TokenInfo, error) {
	service.mu.RLock()
	oldToken, exists := service.refreshTokens[refreshToken]
	service.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("invalid refresh token")
	}

	token, err := jwt.Parse(oldToken, service.keyFunc)

	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return nil, fmt.Errorf("failed to parse old token: %w", err)
	}

	subject, err := token.Claims.GetSubject()

	if err != nil {
		return nil, fmt.Errorf("invalid token claims: %w", err)
	}

	if revokeErr := service.RevokeToken(oldToken); revokeErr != nil {
		return nil, revokeErr
	}

	return service.GenerateToken(subject)
}

// RevokeToken invalidates a token and its refresh token.
func (service *Service) RevokeToken(token string) error {
	service.mu.Lock()
	defer service.mu.Unlock()

	tokenInfo, exists := service.issued[token]

	if !exists {
		return fmt.Errorf("token not found")
	}

	delete(service.issued, token)
	delete(service.refreshTokens, tokenInfo.RefreshToken)
	return nil
}
