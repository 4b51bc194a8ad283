// Package validation checks request input field by field.
//
// A Validator collects one reason per field, keeping the first failure, and
// Err turns the collected reasons into an apperr ValidationFailed error whose
// Fields map is sent back to the client in the response data.
package validation
