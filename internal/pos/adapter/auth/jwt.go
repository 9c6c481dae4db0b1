package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Arash3f/icart-pos/internal/pos/domain"
)

// UserContextKey carries the authenticated back-office user through the
// gin context.
const UserContextKey = "authUser"

// JWT implements domain.AuthZ with HMAC-signed bearer tokens.
type JWT struct {
	secret []byte
	ttl    time.Duration
	users  domain.UserRepository
}

func NewJWT(secret string, ttl time.Duration, users domain.UserRepository) *JWT {
	return &JWT{secret: []byte(secret), ttl: ttl, users: users}
}

// IssueToken signs a token for a back-office user.
func (j *JWT) IssueToken(user *domain.User) (string, error) {
	claims := jwt.MapClaims{
		"sub": user.ID,
		"exp": time.Now().Add(j.ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Authenticate parses and verifies a bearer token and resolves its user.
func (j *JWT) Authenticate(ctx context.Context, tokenStr string) (*domain.User, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return j.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, domain.ErrIncorrectData
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, domain.ErrIncorrectData
	}
	sub, ok := claims["sub"].(float64)
	if !ok {
		return nil, domain.ErrIncorrectData
	}

	return j.users.FindByID(ctx, uint64(sub))
}

// Middleware guards back-office routes with the AuthZ port.
func Middleware(authz domain.AuthZ) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		user, err := authz.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(UserContextKey, user)
		c.Next()
	}
}
