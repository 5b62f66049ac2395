// Package apperrors define los tipos de error que la capa HTTP traduce a
// códigos de estado: validación (400) y no-encontrado (404). Todo lo demás
// se responde como error interno (500).
package apperrors

import (
	"errors"
	"fmt"
)

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func NotFound(format string, args ...any) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 1 {
		return e.Messages[0]
	}
	return fmt.Sprintf("validación fallida: %d errores", len(e.Messages))
}

func Validation(messages ...string) error {
	return &ValidationError{Messages: messages}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
