package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// ContractError is returned when an upstream producer broke the import contract,
// for example a non-user event that carries no external id.
type ContractError struct {
	Op         string
	Message    string
	ExternalID string
}

func NewContractError(op, msg string) *ContractError {
	return &ContractError{
		Op:      op,
		Message: msg,
	}
}

func NewContractErrorf(op, format string, args ...any) *ContractError {
	return &ContractError{
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *ContractError) Error() string {
	path := []string{}
	if e.Op != "" {
		path = append(path, e.Op)
	}
	if e.ExternalID != "" {
		path = append(path, fmt.Sprintf("external id '%s'", e.ExternalID))
	}

	if len(path) == 0 {
		return e.Message
	}

	return strings.Join(path, " -> ") + ": " + e.Message
}

func (e *ContractError) AddExternalID(externalID string) *ContractError {
	e.ExternalID = externalID
	return e
}

func (e *ContractError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).AddMetaValue("op", e.Op).AddMetaValue("external_id", e.ExternalID)
}

func IsContractError(err error) bool {
	var target *ContractError
	return errors.As(err, &target)
}

// ArgumentError is returned when a caller passes a value the callee cannot accept.
type ArgumentError struct {
	Argument string
	Message  string
}

func NewArgumentError(argument, msg string) *ArgumentError {
	return &ArgumentError{
		Argument: argument,
		Message:  msg,
	}
}

func NewArgumentErrorf(argument, format string, args ...any) *ArgumentError {
	return &ArgumentError{
		Argument: argument,
		Message:  fmt.Sprintf(format, args...),
	}
}

func (e *ArgumentError) Error() string {
	if e.Argument == "" {
		return e.Message
	}
	return fmt.Sprintf("argument '%s': %s", e.Argument, e.Message)
}

func (e *ArgumentError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("argument", e.Argument)
}

func IsArgumentError(err error) bool {
	var target *ArgumentError
	return errors.As(err, &target)
}

// ToHTTPError converts a known domain error into an HTTP error. Unknown errors become a 500.
func ToHTTPError(err error) error {
	if err == nil {
		return nil
	}
	var contractErr *ContractError
	if errors.As(err, &contractErr) {
		return contractErr.ToHTTPError()
	}
	var argErr *ArgumentError
	if errors.As(err, &argErr) {
		return argErr.ToHTTPError()
	}
	if httperror.IsHTTPError(err) {
		return err
	}
	return httperror.WrapError(http.StatusInternalServerError, err)
}
