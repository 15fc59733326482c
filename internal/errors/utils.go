package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context, creating a MosaicError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *MosaicError {
	if err == nil {
		return nil
	}

	// If it's already a MosaicError, preserve its location but retype it
	var me *MosaicError
	if errors.As(err, &me) {
		return &MosaicError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       me,
			Context:     me.Context,
			Coordinate:  me.Coordinate,
			Path:        me.Path,
			Recoverable: errType != ErrorTypeConfig && errType != ErrorTypeInternal,
		}
	}

	return &MosaicError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeColumn || errType == ErrorTypeDecode || errType == ErrorTypePersist,
	}
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *MosaicError {
	me := Wrap(err, ErrorTypeConfig, code, message)
	if me != nil {
		me.Recoverable = false
	}
	return me
}

// WrapDecode wraps an error as a fragment decode error
func WrapDecode(err error, code, message string) *MosaicError {
	return Wrap(err, ErrorTypeDecode, code, message)
}

// WrapPersist wraps an error as an output persistence error
func WrapPersist(err error, code, message string) *MosaicError {
	return Wrap(err, ErrorTypePersist, code, message)
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *MosaicError {
	me := Wrap(err, ErrorTypeIO, code, message)
	if me != nil {
		me.Recoverable = false
	}
	return me
}

// GetErrorContext extracts context information from a MosaicError
func GetErrorContext(err error) map[string]interface{} {
	var me *MosaicError
	if errors.As(err, &me) {
		context := make(map[string]interface{})
		for k, v := range me.Context {
			context[k] = v
		}
		if me.Coordinate != nil {
			context["tile"] = me.Coordinate.String()
		}
		if me.Path != "" {
			context["file"] = me.Path
		}
		context["type"] = string(me.Type)
		context["code"] = me.Code
		context["recoverable"] = me.Recoverable
		return context
	}

	return map[string]interface{}{
		"message": err.Error(),
		"type":    "unknown",
	}
}

// ConfigErrorf is a shorthand for a formatted ERR_CONFIG_INVALID error.
func ConfigErrorf(format string, args ...interface{}) *MosaicError {
	return NewConfigError(ErrCodeConfigInvalid, fmt.Sprintf(format, args...))
}
