package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrVariableNotFound indicates that a source variable could not be resolved
	// after every search strategy was tried
	ErrVariableNotFound = errors.New("variable not found")

	// ErrInvalidTemplate indicates a datamap authoring bug such as a reserved
	// token used outside a repeated block
	ErrInvalidTemplate = errors.New("invalid template")

	// ErrExpressionEvaluation indicates that a bracket arithmetic expression failed
	ErrExpressionEvaluation = errors.New("expression evaluation failed")

	// ErrStructuralMismatch indicates that a node resolved to an unexpected shape
	ErrStructuralMismatch = errors.New("structural mismatch")

	// ErrInvalidDatamap indicates that a datamap definition could not be decoded
	ErrInvalidDatamap = errors.New("invalid datamap")

	// ErrInvalidRepetition indicates a repetition index that is not 1-indexed
	ErrInvalidRepetition = errors.New("invalid repetition")

	// ErrUnsupportedVesting indicates a vesting enumeration that cannot be converted
	ErrUnsupportedVesting = errors.New("unsupported vesting configuration")

	// ErrValidationFailed indicates that a generated document failed schema validation
	ErrValidationFailed = errors.New("validation failed")

	// ErrInvalidRecords indicates source records that could not be read
	ErrInvalidRecords = errors.New("invalid source records")
)

// Error represents a structured conversion error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// VariableNotFoundError carries the name of the variable that could not be resolved.
type VariableNotFoundError struct {
	Name       string
	Repetition int
}

func (e *VariableNotFoundError) Error() string {
	if e.Repetition > 0 {
		return fmt.Sprintf("variable %q (repetition %d) not found in source records", e.Name, e.Repetition)
	}
	return fmt.Sprintf("variable %q not found in source records", e.Name)
}

// Is lets errors.Is match ErrVariableNotFound.
func (e *VariableNotFoundError) Is(target error) bool {
	return target == ErrVariableNotFound
}

// NewVariableNotFound creates a VariableNotFoundError for name.
func NewVariableNotFound(name string, repetition int) *VariableNotFoundError {
	return &VariableNotFoundError{Name: name, Repetition: repetition}
}

// InvalidTemplate wraps ErrInvalidTemplate with a description of the problem
func InvalidTemplate(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTemplate, fmt.Sprintf(format, args...))
}

// StructuralMismatch wraps ErrStructuralMismatch with a description of the problem
func StructuralMismatch(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStructuralMismatch, fmt.Sprintf(format, args...))
}

// ValidationFailed wraps ErrValidationFailed with a description of the problem
func ValidationFailed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...))
}

// IsVariableNotFound checks if an error is a missing variable error
func IsVariableNotFound(err error) bool {
	return errors.Is(err, ErrVariableNotFound)
}

// IsInvalidTemplate checks if an error is a template authoring error
func IsInvalidTemplate(err error) bool {
	return errors.Is(err, ErrInvalidTemplate)
}

// IsStructuralMismatch checks if an error is a structural mismatch error
func IsStructuralMismatch(err error) bool {
	return errors.Is(err, ErrStructuralMismatch)
}

// IsValidationFailed checks if an error is a schema validation failure
func IsValidationFailed(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}

// VariableName returns the missing variable name carried by err, if any.
func VariableName(err error) (string, bool) {
	var vnf *VariableNotFoundError
	if errors.As(err, &vnf) {
		return vnf.Name, true
	}
	return "", false
}
