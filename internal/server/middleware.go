package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/authz"
	obscontext "github.com/smallbiznis/warebill/internal/observability/context"
)

const contextPrincipalKey = "principal"

// PrincipalResolver is satisfied by *authz.Resolver.
type PrincipalResolver interface {
	ResolveBearer(raw string) (authz.Principal, error)
}

// AuthRequired resolves the bearer once and stores the principal for handlers.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, apperror.ErrUnauthenticated)
			return
		}

		principal, err := s.principals.ResolveBearer(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextPrincipalKey, principal)
		ctx := obscontext.WithPrincipal(c.Request.Context(), principal.ParentAccountID.String(), principal.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func principalFrom(c *gin.Context) authz.Principal {
	if v, ok := c.Get(contextPrincipalKey); ok {
		if p, ok := v.(authz.Principal); ok {
			return p
		}
	}
	return authz.Principal{}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
