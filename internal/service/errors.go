package service

import "fmt"

type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...any) ValidationError {
	return ValidationError{Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

type ConfigError struct {
	Path string
	Err  error
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("invalid pipeline definition %s: %v", e.Path, e.Err)
}

func (e ConfigError) Unwrap() error {
	return e.Err
}

type VcsError struct {
	Path string
	Err  error
}

func (e VcsError) Error() string {
	return fmt.Sprintf("vcs error for %s: %v", e.Path, e.Err)
}

func (e VcsError) Unwrap() error {
	return e.Err
}

type ExecError struct {
	Script string
	Err    error
}

func (e ExecError) Error() string {
	return fmt.Sprintf("err executing '%s': %v", e.Script, e.Err)
}

func (e ExecError) Unwrap() error {
	return e.Err
}

type InvalidStateError struct {
	Message string
}

func (e InvalidStateError) Error() string {
	return e.Message
}

type ErrRunQueueFull struct{}

func (e ErrRunQueueFull) Error() string {
	return "run queue is full"
}

func NewErrRunQueueFull() *ErrRunQueueFull {
	return &ErrRunQueueFull{}
}

type RunCancelError struct {
	Message string
}

func (rce RunCancelError) Error() string {
	return rce.Message
}
