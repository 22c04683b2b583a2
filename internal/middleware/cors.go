package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	devOrigins   = []string{"http://localhost:3000", "http://localhost:5173"}
	corsHeaders  = []string{"Authorization", "Content-Type", "Accept", "Origin", "X-Request-Id"}
	corsMethods  = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	corsMaxAge = "600"
)

// CORS echoes the Origin header back for allowed origins. origins is the
// comma separated allowlist from config; "*" allows any origin without
// credentials. The local dev origins are always allowed.
func CORS(origins string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(devOrigins))
	for _, o := range devOrigins {
		allowed[o] = struct{}{}
	}
	anyOrigin := false
	for _, o := range strings.Split(origins, ",") {
		switch o = strings.TrimSpace(o); o {
		case "":
		case "*":
			anyOrigin = true
		default:
			allowed[strings.TrimRight(o, "/")] = struct{}{}
		}
	}
	allowHeaders := strings.Join(corsHeaders, ", ")
	allowMethods := strings.Join(corsMethods, ", ")

	return func(c *gin.Context) {
		h := c.Writer.Header()
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			} else if anyOrigin {
				h.Set("Access-Control-Allow-Origin", "*")
			}
		}

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		// preflight ends here, before JWTAuth
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Max-Age", corsMaxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}
