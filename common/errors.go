package common

import "fmt"

// Fault represents a Modbus exception response surfaced as a Go error.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7 (Exception Responses)
//
// A Fault is not a transport failure: the request/response exchange itself
// succeeded, the server simply declined the operation. Client code should
// treat a Fault the same way it treats any other business-logic rejection,
// not a communication error.
type Fault struct {
	FunctionCode  FunctionCode
	ExceptionCode ExceptionCode
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("modbus: exception response: function=%s exception=%s", f.FunctionCode, f.ExceptionCode)
}

// NewFault creates a new Fault error.
func NewFault(fc FunctionCode, ec ExceptionCode) *Fault {
	return &Fault{FunctionCode: fc, ExceptionCode: ec}
}

// AsFault reports whether err is a *Fault and returns it.
func AsFault(err error) (*Fault, bool) {
	f, ok := err.(*Fault)
	return f, ok
}
