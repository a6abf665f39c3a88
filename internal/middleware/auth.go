package middleware

import (
	"errors"
	"strings"

	appErr "poker-service/pkg/errors"
	pkgAuth "poker-service/pkg/auth"
	"poker-service/pkg/response"

	"github.com/gin-gonic/gin"
)

const ContextUserIDKey = "userID"

// TokenVerifier is satisfied by *auth.Signer.
type TokenVerifier interface {
	ParseUserToken(token string) (*pkgAuth.Claims, error)
}

func AuthRequired(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.AbortWithError(c, appErr.ErrAuthRequired.WithMessage("%s", err.Error()))
			return
		}

		claims, err := verifier.ParseUserToken(token)
		if err != nil {
			response.AbortWithError(c, appErr.ErrAuthInvalid)
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Next()
	}
}

// UserID returns the authenticated caller set by AuthRequired.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func ExtractBearerToken(authHeader string) (string, error) {
	if strings.TrimSpace(authHeader) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization header")
	}
	return token, nil
}
