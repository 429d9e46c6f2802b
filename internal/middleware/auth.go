package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/gin-gonic/gin"

	apperrors "tourbook/internal/errors"
	"tourbook/internal/logger"
	"tourbook/internal/models"
	"tourbook/internal/repository"
)

const principalKey = "principal"

// PrincipalCache is satisfied by cache.ValkeyClient.
type PrincipalCache interface {
	GetPrincipal(ctx context.Context, email, passwordHash string) (models.Principal, error)
	SetPrincipal(ctx context.Context, email, passwordHash string, p models.Principal) error
}

func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// BasicAuth resolves HTTP Basic credentials to a principal, trying the cache
// before the users table. cache may be nil.
func BasicAuth(users repository.UserRepository, cache PrincipalCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, password, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", `Basic realm="tourbook"`)
			_ = c.Error(apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		passwordHash := HashPassword(password)

		if cache != nil {
			if p, err := cache.GetPrincipal(ctx, email, passwordHash); err == nil {
				setPrincipal(c, p)
				c.Next()
				return
			}
		}

		user, err := users.GetByEmail(ctx, email)
		if err != nil && !apperrors.Is(err, apperrors.KindNotFound) {
			_ = c.Error(err)
			c.Abort()
			return
		}
		if user == nil || user.PasswordHash == "" ||
			subtle.ConstantTimeCompare([]byte(user.PasswordHash), []byte(passwordHash)) != 1 {
			_ = c.Error(apperrors.Wrap(apperrors.KindUnauthorized, err, "Invalid credentials"))
			c.Abort()
			return
		}

		p := models.Principal{ID: user.ID, Role: user.Role}
		if cache != nil {
			if err := cache.SetPrincipal(ctx, email, passwordHash, p); err != nil {
				logger.WithContext(ctx).Warn("Failed to cache principal", "error", err)
			}
		}

		setPrincipal(c, p)
		c.Next()
	}
}

func setPrincipal(c *gin.Context, p models.Principal) {
	c.Set(principalKey, p)
	c.Request = c.Request.WithContext(logger.ContextWithUserID(c.Request.Context(), p.ID))
}

// SetPrincipal is used by tests to bypass authentication.
func SetPrincipal(p models.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		setPrincipal(c, p)
		c.Next()
	}
}

func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return models.Principal{}, false
	}
	p, ok := v.(models.Principal)
	return p, ok
}

// RequireRole must run after BasicAuth.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			_ = c.Error(apperrors.ErrUnauthorized)
			c.Abort()
			return
		}
		for _, role := range roles {
			if p.Role == role {
				c.Next()
				return
			}
		}
		_ = c.Error(apperrors.ErrForbidden)
		c.Abort()
	}
}
