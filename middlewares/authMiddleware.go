package middlewares

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mmdatafocus/hubsync_backend/utils"
)

type authString string

// AuthMiddleware requires an HS256 bearer token signed with secret and stores its claims
// in the request context. A company-scoped token also scopes ledger queries to that
// company. An empty secret disables the check.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.Next()
			return
		}

		claims, err := utils.JwtValidate(utils.BearerToken(c.Request.Header.Get("Authorization")), secret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := context.WithValue(c.Request.Context(), authString("auth"), claims)
		if claims.CompanyCode != "" {
			ctx = utils.SetCompanyCodeInContext(ctx, claims.CompanyCode)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func CtxValue(ctx context.Context) *utils.PushClaims {
	raw, _ := ctx.Value(authString("auth")).(*utils.PushClaims)
	return raw
}

// CompanyAllowed reports whether the caller's token may act on companyCode.
// Tokens without a company claim are not scoped.
func CompanyAllowed(ctx context.Context, companyCode string) bool {
	claims := CtxValue(ctx)
	return claims == nil || claims.CompanyCode == "" || claims.CompanyCode == companyCode
}
