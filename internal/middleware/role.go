package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"servicecenter/internal/domain"
	"servicecenter/internal/pkg/response"
)

// RequireRole ensures that the authenticated user has one of the given roles.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Role not found in token")
			c.Abort()
			return
		}

		current, _ := role.(string)
		for _, r := range roles {
			if domain.Role(current) == r {
				c.Next()
				return
			}
		}

		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Access denied: insufficient permissions")
		c.Abort()
	}
}

// StaffOnly allows service-center staff and admins.
func StaffOnly() gin.HandlerFunc {
	return RequireRole(domain.RoleStaff, domain.RoleAdmin)
}
