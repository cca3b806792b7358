// Package httputil provides HTTP utilities for standardized request/response handling.
//
// Error responses always carry a machine-readable code so callers can tell a
// denial from a failure:
//
//	{"error": "permission denied", "code": "PERMISSION_DENIED"}
//
// Usage:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteErrorCode(w, http.StatusInternalServerError,
//		httputil.CodePermissionCheckFailed, "permission check failed")
//
//	userID, ok := httputil.ParsePathUUIDOrError(w, r, "userId")
//	if !ok {
//		return // Error response already written
//	}
//
// Middleware:
//
//	httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
