package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// 业务错误定义
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSessionAlreadyActive = errors.New("user is already logged in and in voting process")
	ErrRemoteUnavailable    = errors.New("data store unavailable")
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation failed")

	ErrNoRoles          = errors.New("no voting positions available")
	ErrSubmitInProgress = errors.New("vote submission already in progress")
)

// storeErr 把数据库错误转换为业务错误
func storeErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	if isBusinessErr(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrRemoteUnavailable, what, err)
}

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func isBusinessErr(err error) bool {
	for _, target := range []error{
		ErrInvalidCredentials, ErrSessionAlreadyActive, ErrRemoteUnavailable,
		ErrNotFound, ErrValidation, ErrNoRoles, ErrSubmitInProgress,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
