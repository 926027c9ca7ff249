package handler

import (
	"net/http"

	"github.com/cuongbtq/snow-market/internal/api/auth"
	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// SetPrincipal stores the resolved caller on the request context
func SetPrincipal(c *gin.Context, p *auth.Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the caller stored by SetPrincipal
func PrincipalFrom(c *gin.Context) (*auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*auth.Principal)
	return p, ok && p != nil
}

// mustPrincipal aborts with 401 when no principal was resolved
func mustPrincipal(c *gin.Context) (*auth.Principal, bool) {
	p, ok := PrincipalFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Unauthorized",
			"code":  domain.KindUnauthenticated.String(),
		})
		return nil, false
	}
	return p, true
}
