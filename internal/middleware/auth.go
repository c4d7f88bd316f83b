package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// OracleClaims represents the JWT token claims for oracle API clients.
type OracleClaims struct {
	// ClientID identifies the API client.
	ClientID string `json:"client_id"`
	// Role gates access to operator endpoints such as the audit trail.
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware provides JWT authentication middleware.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(secretKey string) *AuthMiddleware {
	return &AuthMiddleware{
		secretKey: []byte(secretKey),
	}
}

// RequireAuth middleware validates JWT tokens.
// It requires a valid Bearer token in the Authorization header.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := am.claimsFromRequest(c)
		if err != nil {
			status := http.StatusUnauthorized
			message := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				message = "Token expired"
			} else if errors.Is(err, errMissingAuthHeader) {
				message = "Authorization header required"
			} else if errors.Is(err, errMalformedAuthHeader) {
				message = "Invalid authorization header format"
			}
			c.JSON(status, gin.H{"error": message})
			c.Abort()
			return
		}

		c.Set("client_id", claims.ClientID)
		c.Set("client_role", claims.Role)
		c.Next()
	}
}

// RequireRole validates the token and additionally demands a specific role
// claim. Used for operator-only endpoints.
func (am *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	authenticate := am.RequireAuth()
	return func(c *gin.Context) {
		authenticate(c)
		if c.IsAborted() {
			return
		}
		if c.GetString("client_role") != role {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
			c.Abort()
		}
	}
}

var (
	errMissingAuthHeader   = errors.New("authorization header required")
	errMalformedAuthHeader = errors.New("malformed authorization header")
)

func (am *AuthMiddleware) claimsFromRequest(c *gin.Context) (*OracleClaims, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, errMissingAuthHeader
	}

	// Check Bearer prefix (case-insensitive as per RFC 6750)
	tokenParts := strings.Split(authHeader, " ")
	if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" || tokenParts[1] == "" {
		return nil, errMalformedAuthHeader
	}

	return am.ValidateToken(tokenParts[1])
}

// GenerateToken creates a new JWT token for an API client.
func (am *AuthMiddleware) GenerateToken(clientID, role string, duration time.Duration) (string, error) {
	claims := &OracleClaims{
		ClientID: clientID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(am.secretKey)
}

// ValidateToken validates a JWT token and returns its claims.
func (am *AuthMiddleware) ValidateToken(tokenString string) (*OracleClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OracleClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return am.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*OracleClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token claims")
}
