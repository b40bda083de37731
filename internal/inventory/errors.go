package inventory

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"stockroom.org/internal/apperr"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/ledger"
	"stockroom.org/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FieldViolation names a rejected input field and the rule it broke.
type FieldViolation struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Wrap(apperr.CodeValidation, err, "invalid input")
	}
	violations := make([]FieldViolation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		violations = append(violations, FieldViolation{Field: fe.Field(), Rule: fe.Tag()})
	}
	return apperr.Wrap(apperr.CodeValidation, err, "invalid input").WithDetails(violations)
}

func invalid(format string, args ...any) error {
	return apperr.Newf(apperr.CodeValidation, format, args...)
}

// classify maps lower-layer failures onto the apperr taxonomy. It is applied
// once, at the service boundary.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if typed := apperr.As(err); typed != nil {
		return typed
	}

	var denied *auth.DeniedError
	var verr *ledger.ValidationError
	var short *ledger.ShortfallError
	switch {
	case errors.As(err, &denied):
		return apperr.Wrap(apperr.CodePermissionDenied, err, "access denied").WithDetails(map[string]string{
			"resource": string(denied.Resource),
			"action":   string(denied.Action),
			"reason":   string(denied.Reason),
		})
	case errors.As(err, &verr):
		return apperr.Wrap(apperr.CodeValidation, err, "invalid catalog entry").WithDetails(verr)
	case errors.As(err, &short):
		return apperr.Wrap(apperr.CodeConflict, err, "insufficient stock").WithDetails(short)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, auth.ErrNotFound):
		return apperr.Wrap(apperr.CodeNotFound, err, "not found")
	case errors.Is(err, store.ErrInvalidDocument), errors.Is(err, auth.ErrInvalidInput):
		return apperr.Wrap(apperr.CodeValidation, err, "invalid input")
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.CodeStoreUnavailable, err, "storage unavailable")
	default:
		return apperr.Wrap(apperr.CodeInternal, err, "internal error")
	}
}
