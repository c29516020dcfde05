package services

import (
	"errors"
	"wikits/internal/apperr"

	"gorm.io/gorm"
)

// wrapErr 保留业务错误，其余视为内部错误
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var e *apperr.Error
	if errors.As(err, &e) {
		return e
	}
	return apperr.Internal(err)
}

// notFoundOr 把 gorm 的 RecordNotFound 转成 NotFound
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(what)
	}
	return wrapErr(err)
}
