package middleware

import (
	"net/http"

	"enigh/internal/tablecache"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionCookie names the cookie holding the dashboard session id.
const SessionCookie = "enigh_session"

const (
	tablesKey  = "tables"
	sessionKey = "session"
)

// EnsureSession assigns every browser a session id and attaches the session's
// table cache to the gin context and to the request context.
func EnsureSession(store *tablecache.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(SessionCookie)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, id, 0, "/", "", false, true)
		}

		cache := store.Get(id)
		c.Set(sessionKey, id)
		c.Set(tablesKey, cache)
		c.Request = c.Request.WithContext(tablecache.NewContext(c.Request.Context(), cache))
		c.Next()
	}
}

// Tables returns the table cache EnsureSession attached to c.
func Tables(c *gin.Context) *tablecache.Cache {
	if v, ok := c.Get(tablesKey); ok {
		if cache, ok := v.(*tablecache.Cache); ok {
			return cache
		}
	}
	cache, _ := tablecache.FromContext(c.Request.Context())
	return cache
}

// SessionID returns the id EnsureSession assigned to c.
func SessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}
