package mw

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// ActorHeader carries the id of the operator making the request. Authentication
// happens upstream; this service only records who acted.
const ActorHeader = "X-User-ID"

const actorKey = "actor_id"

// Actor parses the actor header into the context. A malformed header is
// rejected; a missing one leaves the actor unset.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(ActorHeader))
		if raw == "" {
			c.Next()
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + ActorHeader + " header"})
			return
		}
		c.Set(actorKey, id)
		c.Next()
	}
}

// ActorID returns the actor set by Actor, if any.
func ActorID(c *gin.Context) (*int64, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil, false
	}
	id := v.(int64)
	return &id, true
}
