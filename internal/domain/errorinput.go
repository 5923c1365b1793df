package domain

import "fmt"

// ErrorDetail is the uniform shape extracted from any ErrorInput variant.
type ErrorDetail struct {
	Name    string
	Message string
	Stack   string
	Code    string
}

// ErrorInput is the closed set of shapes the capture path accepts. Each
// variant knows how to extract the uniform detail record.
type ErrorInput interface {
	Detail() ErrorDetail
}

// StringMessage is a bare error message with no further structure.
type StringMessage string

// Detail extracts the uniform error shape from a plain message.
func (m StringMessage) Detail() ErrorDetail {
	return ErrorDetail{Name: "Error", Message: string(m)}
}

// StructuredObject is a caller-assembled error with explicit fields.
type StructuredObject struct {
	Name    string
	Message string
	Stack   string
	Code    string
}

// Detail extracts the uniform error shape from a structured object.
func (o StructuredObject) Detail() ErrorDetail {
	name := o.Name
	if name == "" {
		name = "Error"
	}
	return ErrorDetail{Name: name, Message: o.Message, Stack: o.Stack, Code: o.Code}
}

// NativeException wraps a Go error value.
type NativeException struct {
	Err error
}

// Detail extracts the uniform error shape from a native error. The dynamic
// type of the wrapped error becomes the name so that distinct error types
// form distinct patterns.
func (e NativeException) Detail() ErrorDetail {
	if e.Err == nil {
		return ErrorDetail{Name: "Error", Message: "unknown error"}
	}
	return ErrorDetail{Name: fmt.Sprintf("%T", e.Err), Message: e.Err.Error()}
}

// Kind reports the taxonomy label recorded for each input variant.
func Kind(input ErrorInput) string {
	switch input.(type) {
	case StringMessage:
		return "message"
	case NativeException:
		return "exception"
	default:
		return "error"
	}
}
