package cli

import (
	"errors"
	"fmt"
)

// Códigos de salida.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // el API rechazó o quedaron entradas sin reenviar
	ExitCommandError = 2 // argumentos, archivo o base inválidos
)

// ExitError error con código de salida.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// WrapExitError envuelve err con un código de salida.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode devuelve el código asociado a err (ExitFailure si no es un ExitError).
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}
