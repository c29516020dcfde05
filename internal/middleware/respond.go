package middleware

import (
	"errors"
	"wikits/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// FieldError 单个字段的校验失败
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// BindError 把 gin 绑定错误转换为 Validation 错误
func BindError(err error) *apperr.Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
		}
		return apperr.Validation("validation failed", details)
	}
	e := apperr.Validation("invalid request body", nil)
	e.Err = err
	return e
}

// AbortWithError 统一错误响应 {"error":{"message","code","details"}}
func AbortWithError(c *gin.Context, err error) {
	e := apperr.As(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(e.Status(), gin.H{"error": ErrorBody{
		Message: e.Error(),
		Code:    e.Code,
		Details: e.Details,
	}})
}
