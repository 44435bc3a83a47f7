package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/enneagram-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondErr maps err through the apierr taxonomy. Unclassified errors become
// a 500 whose message does not leak internals.
func RespondErr(c *gin.Context, err error) {
	status, code := apierr.StatusOf(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
		_ = c.Error(err)
		RespondError(c, status, code, errInternal)
		return
	}
	msg, _ := apierr.MessageOf(err)
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

type internalError struct{}

func (internalError) Error() string { return "internal error" }

var errInternal error = internalError{}
