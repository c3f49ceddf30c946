package mw

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clubhouse-backend/internal/auth"
)

const actorKey = "actor"

// Authenticate resolves the bearer token into an auth.Actor. Requests
// without an Authorization header continue anonymously; invalid tokens are
// rejected.
func Authenticate(v *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		actor, err := v.Verify(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
			return
		}
		c.Set(actorKey, actor)
		c.Request = c.Request.WithContext(auth.ContextWithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// RequireActor rejects anonymous requests.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ActorFrom(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthenticated.Error()})
			return
		}
		c.Next()
	}
}

// ActorFrom returns the actor set by Authenticate.
func ActorFrom(c *gin.Context) (auth.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return auth.Actor{}, false
	}
	actor, ok := v.(auth.Actor)
	return actor, ok
}
