// Package httputil provides the HTTP building blocks shared by the API
// handlers.
//
// Every response, success or failure, is an Envelope:
//
//	{"message": "Article created successfully", "status": 201, "data": {...}}
//
// Handlers return service errors through WriteAppError, which maps
// apperr kinds onto status codes:
//
//	article, err := h.articles.Get(r.Context(), id)
//	if err != nil {
//		httputil.WriteAppError(w, r, err)
//		return
//	}
//	httputil.WriteSuccess(w, "Article fetched successfully", article)
//
// Unclassified errors are logged with the request id and answered with a
// generic 500 so internals never reach the client.
//
// The middleware in this package runs in the order given to Chain:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.CORSMiddleware(origins),
//	)(router)
package httputil
