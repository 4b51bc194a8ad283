package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/thoughtnest/pkg/apperr"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
)

// Envelope is the body of every API response. Status repeats the HTTP
// status code; Data is null on errors unless validation details exist.
type Envelope struct {
	Message string      `json:"message"`
	Status  int         `json:"status"`
	Data    interface{} `json:"data"`
}

// WriteResponse writes an envelope with the given status code.
func WriteResponse(w http.ResponseWriter, status int, message string, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(Envelope{
		Message: message,
		Status:  status,
		Data:    data,
	})
}

// WriteSuccess writes a 200 envelope.
func WriteSuccess(w http.ResponseWriter, message string, data interface{}) {
	_ = WriteResponse(w, http.StatusOK, message, data)
}

// WriteErrorMessage writes an error envelope with no data.
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteResponse(w, status, message, nil)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusTooManyRequests, message)
}

// WriteInternalError writes the generic 500 envelope. The cause is never
// sent to the client.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "Internal server error")
}

// WriteAppError translates err into an envelope. Classified errors keep
// their message; validation errors carry their field map in data and
// conflicts name the field. Anything else is logged and becomes a 500.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperr.KindInternal {
		observability.FromContext(r.Context()).
			WithError(err).
			WithFields(map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
			}).
			Error("Request failed")
		WriteInternalError(w)
		return
	}

	status := appErr.Kind.HTTPStatus()
	logger := observability.FromContext(r.Context()).WithField("kind", appErr.Kind.String())
	if appErr.Kind == apperr.KindUpstreamFailure {
		logger.WithError(err).Error("Upstream dependency failed")
	} else {
		logger.Debug(appErr.Message)
	}

	var data interface{}
	switch {
	case len(appErr.Fields) > 0:
		data = appErr.Fields
	case appErr.Field != "":
		data = map[string]string{"field": appErr.Field}
	}

	_ = WriteResponse(w, status, appErr.Message, data)
}
