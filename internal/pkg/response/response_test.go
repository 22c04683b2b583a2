package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"servicecenter/internal/pkg/apperr"
)

func TestFromError_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err  error
		want int
		code string
	}{
		{apperr.Validation("invalid_quantity", "bad"), http.StatusBadRequest, "INVALID_QUANTITY"},
		{apperr.BusinessRule("slot_full", "full"), http.StatusConflict, "SLOT_FULL"},
		{apperr.Forbidden("not_owner", "no"), http.StatusForbidden, "NOT_OWNER"},
		{apperr.NotFound("appointment_not_found", "missing"), http.StatusNotFound, "APPOINTMENT_NOT_FOUND"},
		{apperr.ErrLockTimeout, http.StatusServiceUnavailable, "LOCK_TIMEOUT"},
		{apperr.Persistence(errors.New("disk")), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{errors.New("plain"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		FromError(c, tt.err)

		assert.Equal(t, tt.want, w.Code, tt.err.Error())
		assert.Contains(t, w.Body.String(), tt.code)
		assert.Len(t, c.Errors, 1)
	}
}
