// Package registry maps action names to handlers.
//
// A Handler takes the request params and returns either the data mapping for
// a success envelope or an error. Errors of type *Error choose the envelope
// code and the client-visible message; any other error is reported as a 500
// with its Error() text. Registration normally happens before serving, but
// the Registry is safe for concurrent Register and Resolve.
package registry
