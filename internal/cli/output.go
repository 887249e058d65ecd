package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Коды выхода spawnctl.
const (
	ExitSuccess      = 0 // успешное выполнение
	ExitFailure      = 1 // документ не прошёл проверку
	ExitCommandError = 2 // ошибка команды (нет файла, неверные флаги)
)

// ExitError ошибка с кодом выхода процесса.
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

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError создаёт ExitError без вложенной ошибки.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError оборачивает err с кодом выхода.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode извлекает код выхода; для прочих ошибок ExitFailure.
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

// Response JSON-ответ команд при --format json.
type Response struct {
	Status string      `json:"status"` // "ok" или "error"
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// formatter пишет результат в выбранном формате.
type formatter struct {
	format string
	w      io.Writer
}

func (f *formatter) json() bool {
	return f.format == "json"
}

func (f *formatter) encode(resp Response) error {
	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
