package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conneroisu/tilestack/internal/types"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	// ErrorTypeConfig is fatal: the run cannot start or cannot continue.
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeColumn forecloses every floor of one column.
	ErrorTypeColumn ErrorType = "column"
	// ErrorTypeDecode is a fragment that is present but unusable.
	ErrorTypeDecode ErrorType = "decode"
	// ErrorTypePersist is a failed output write.
	ErrorTypePersist ErrorType = "persist"

	ErrorTypeIO       ErrorType = "io"
	ErrorTypeInternal ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeBackgroundMissing = "ERR_BACKGROUND_MISSING"
	ErrCodeNoFragments       = "ERR_NO_FRAGMENTS"
	ErrCodeNoZRange          = "ERR_NO_Z_RANGE"
	ErrCodeNoTiles           = "ERR_NO_TILES"
	ErrCodeOutOfBounds       = "ERR_OUT_OF_BOUNDS"
	ErrCodeColumnBroken      = "ERR_COLUMN_BROKEN"
	ErrCodeMissingBase       = "ERR_MISSING_BASE"
	ErrCodeNoPayload         = "ERR_NO_PAYLOAD"
	ErrCodeDecodeFailed      = "ERR_DECODE_FAILED"
	ErrCodeFragmentRead      = "ERR_FRAGMENT_READ"
	ErrCodeTilePersist       = "ERR_TILE_PERSIST"
	ErrCodeLayerPersist      = "ERR_LAYER_PERSIST"
	ErrCodeCompositePersist  = "ERR_COMPOSITE_PERSIST"
	ErrCodeSummaryPersist    = "ERR_SUMMARY_PERSIST"
	ErrCodeSummaryRead       = "ERR_SUMMARY_READ"
	ErrCodeFileWrite         = "ERR_FILE_WRITE"
	ErrCodeFileNotFound      = "ERR_FILE_NOT_FOUND"
	ErrCodeInternalError     = "ERR_INTERNAL"
)

// MosaicError is a structured error type with context.
type MosaicError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Coordinate  *types.GridCoordinate
	Path        string
	Recoverable bool
}

// Error implements the error interface.
func (e *MosaicError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Coordinate != nil {
		parts = append(parts, "tile:"+e.Coordinate.String())
	}

	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *MosaicError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *MosaicError) Is(target error) bool {
	var t *MosaicError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *MosaicError) WithContext(key string, value interface{}) *MosaicError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithCoordinate attaches the grid coordinate the error occurred at.
func (e *MosaicError) WithCoordinate(c types.GridCoordinate) *MosaicError {
	e.Coordinate = &c

	return e
}

// WithPath attaches the file the error relates to.
func (e *MosaicError) WithPath(path string) *MosaicError {
	e.Path = path

	return e
}

// Error creation functions

// NewConfigError creates a configuration error. Configuration errors end the run.
func NewConfigError(code, message string) *MosaicError {
	return &MosaicError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewColumnError creates a column-scoped error.
func NewColumnError(code, message string, cause error) *MosaicError {
	return &MosaicError{
		Type:        ErrorTypeColumn,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewDecodeError creates a fragment decode error.
func NewDecodeError(code, message string, cause error) *MosaicError {
	return &MosaicError{
		Type:        ErrorTypeDecode,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewPersistError creates an output persistence error.
func NewPersistError(code, message string, cause error) *MosaicError {
	return &MosaicError{
		Type:        ErrorTypePersist,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *MosaicError {
	return &MosaicError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *MosaicError {
	return &MosaicError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Error recovery and handling utilities

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var me *MosaicError
	if errors.As(err, &me) {
		return me.Recoverable
	}

	return false
}

// IsConfigError checks if an error is a fatal configuration error.
func IsConfigError(err error) bool {
	var me *MosaicError
	if errors.As(err, &me) {
		return me.Type == ErrorTypeConfig
	}

	return false
}

// HasCode reports whether err carries the given error code anywhere in its chain.
func HasCode(err error, code string) bool {
	for err != nil {
		var me *MosaicError
		if !errors.As(err, &me) {
			return false
		}
		if me.Code == code {
			return true
		}
		err = me.Cause
	}

	return false
}
