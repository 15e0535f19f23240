package service

import (
	"fmt"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uint, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %d not found", resourceType, id)}
}

func NewErrJobNotFound(id uint) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "calculation")
}

// ErrInvalidExpression carries the parse error as its message.
type ErrInvalidExpression struct {
	error
}

func NewErrInvalidExpression(err error) *ErrInvalidExpression {
	return &ErrInvalidExpression{err}
}

type ErrUserExists struct {
	error
}

func NewErrUserExists(login string) *ErrUserExists {
	return &ErrUserExists{fmt.Errorf("user %q already exists", login)}
}

type ErrInvalidCredentials struct {
	error
}

func NewErrInvalidCredentials() *ErrInvalidCredentials {
	return &ErrInvalidCredentials{fmt.Errorf("invalid login or password")}
}

type ErrInvalidWorker struct {
	error
}

func NewErrInvalidWorker(err error) *ErrInvalidWorker {
	return &ErrInvalidWorker{fmt.Errorf("invalid worker: %w", err)}
}

func NewErrUserNotFound(login string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("user %q not found", login)}
}
