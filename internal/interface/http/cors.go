package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// corsMiddleware answers preflight requests for the chat frontend. With no
// configured origins every origin is allowed; otherwise only listed origins
// are echoed back and others get no allow header.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0
	origins := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		origins[strings.ToLower(origin)] = struct{}{}
	}

	return func(c *gin.Context) {
		headers := c.Writer.Header()
		requestOrigin := c.GetHeader("Origin")
		switch {
		case allowAll:
			headers.Set("Access-Control-Allow-Origin", "*")
		case requestOrigin != "":
			if _, ok := origins[strings.ToLower(requestOrigin)]; ok {
				headers.Set("Access-Control-Allow-Origin", requestOrigin)
			}
			headers.Add("Vary", "Origin")
		}
		headers.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		headers.Set("Access-Control-Allow-Headers", "Content-Type")
		headers.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
