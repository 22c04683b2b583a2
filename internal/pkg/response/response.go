package response

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"servicecenter/internal/pkg/apperr"
)

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// FromError writes the envelope for a service error and records it on the
// gin context for the request logger.
func FromError(c *gin.Context, err error) {
	_ = c.Error(err)

	code := strings.ToUpper(apperr.CodeOf(err))
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		Error(c, http.StatusBadRequest, code, err.Error())
	case apperr.KindBusinessRule:
		Error(c, http.StatusConflict, code, err.Error())
	case apperr.KindAuthorization:
		Error(c, http.StatusForbidden, code, err.Error())
	case apperr.KindNotFound:
		Error(c, http.StatusNotFound, code, err.Error())
	case apperr.KindPersistence:
		if apperr.IsRetryable(err) {
			c.Header("Retry-After", "1")
			Error(c, http.StatusServiceUnavailable, code, "temporarily unavailable, retry")
			return
		}
		Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	default:
		Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}
