// Package validation checks submitted form fields (registration, login)
// and reports the first failing rule per field.
//
// # Usage Example
//
//	v := validation.NewValidator()
//	v.Required("name", name).MaxLength("name", name, 255)
//	v.Required("email", email).Email("email", email)
//	v.Required("password", pw).MinLength("password", pw, 6).Confirmed("password", pw, confirm)
//
//	if res := v.Result(); !res.IsValid() {
//		httputil.WriteValidationErrors(w, res.Fields())
//		return
//	}
package validation
