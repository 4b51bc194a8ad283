package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/thoughtnest/pkg/apperr"
)

// ParseJSON decodes a single JSON object from the request body into dest.
// Malformed bodies are reported as validation failures.
func ParseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return apperr.Validation("Request body is required", nil)
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Validation("Request body is required", nil)
		case errors.As(err, &tooLarge):
			return apperr.Validation("Request body too large", nil)
		default:
			return apperr.Validation("Invalid JSON: "+err.Error(), nil)
		}
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes an error envelope on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteAppError(w, r, err)
		return false
	}
	return true
}

// ParsePathInt64 extracts and parses an int64 path parameter
func ParsePathInt64(r *http.Request, key string) (int64, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return 0, apperr.Validation(fmt.Sprintf("Missing path parameter: %s", key), nil)
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil || val <= 0 {
		return 0, apperr.Validation(fmt.Sprintf("Invalid %s: %s", key, str), nil)
	}
	return val, nil
}

// ParsePathInt64OrError extracts an int64 path parameter and writes an
// error envelope on failure
func ParsePathInt64OrError(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	val, err := ParsePathInt64(r, key)
	if err != nil {
		WriteAppError(w, r, err)
		return 0, false
	}
	return val, true
}

// ParseQueryBool extracts a required boolean query parameter
func ParseQueryBool(r *http.Request, key string) (bool, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return false, apperr.Validation(fmt.Sprintf("Missing query parameter: %s", key), nil)
	}
	val, err := strconv.ParseBool(str)
	if err != nil {
		return false, apperr.Validation(fmt.Sprintf("Invalid boolean for %s: %s", key, str), nil)
	}
	return val, nil
}

// ParseQueryString extracts a string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val
}
