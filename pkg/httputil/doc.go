// Package httputil provides HTTP utilities shared by the ssobridge handlers.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteUnauthorized(w, "invalid or expired token")
//	httputil.WriteValidationErrors(w, map[string]string{"email": "has already been taken"})
//	httputil.Redirect(w, r, target)
//
// # Request Parsing
//
// Endpoints accept JSON objects as well as HTML form posts:
//
//	fields, ok := httputil.ParseFieldsOrError(w, r)
//	if !ok {
//		return // 400 already written
//	}
//	email := fields.Get("email")
//
// # Redirect Targets
//
// User-supplied return destinations go through SafeRedirectTarget, which only
// lets relative paths and configured origins through:
//
//	target := httputil.SafeRedirectTarget(r.URL.Query().Get("return_to"), "/dashboard", appURL, partnerURL)
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
