package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the credential verifier yields for an accepted token
type Claims struct {
	SubjectID  string
	Role       string
	Department string
}

// VerifyToken validates a bearer credential and extracts its claims.
// The websocket handshake calls this directly; HTTP routes go through Auth.
func VerifyToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the alg is what we expect
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}

	subject, ok := claims["sub"].(string)
	if !ok || subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	result := &Claims{SubjectID: subject}
	if role, ok := claims["role"].(string); ok {
		result.Role = role
	}
	if department, ok := claims["department"].(string); ok {
		result.Department = department
	}
	return result, nil
}

// ExtractToken pulls the bearer credential from the Authorization header
// or, for websocket upgrades, the token query parameter
func ExtractToken(r *http.Request) string {
	bearerToken := r.Header.Get("Authorization")
	if strings.HasPrefix(bearerToken, "Bearer ") {
		return strings.TrimPrefix(bearerToken, "Bearer ")
	}

	return r.URL.Query().Get("token")
}

// Auth gates HTTP routes on a valid bearer credential
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ExtractToken(c.Request)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization token",
			})
			return
		}

		claims, err := VerifyToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
			})
			return
		}

		c.Set("userID", claims.SubjectID)
		c.Set("role", claims.Role)
		c.Set("department", claims.Department)
		c.Next()
	}
}
