package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
)

const ctxPrincipal = "escrow_principal"

// RequirePrincipal returns a Gin middleware that enforces a valid Bearer
// caller token and injects its principal into the context.
func RequirePrincipal(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		p, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		c.Set(ctxPrincipal, p)
		c.Next()
	}
}

// PrincipalFromCtx returns the principal injected by RequirePrincipal, and
// false when the request is unauthenticated.
func PrincipalFromCtx(c *gin.Context) (model.Principal, bool) {
	v, ok := c.Get(ctxPrincipal)
	if !ok {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok && !p.IsZero()
}
