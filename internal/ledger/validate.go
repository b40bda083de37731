package ledger

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
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

// Normalize trims the free-text fields of e.
func Normalize(e Entry) Entry {
	e.CatalogName = strings.TrimSpace(e.CatalogName)
	e.ReceiptDate = strings.TrimSpace(e.ReceiptDate)
	e.DeliveryDate = strings.TrimSpace(e.DeliveryDate)
	e.DistributionDestination = strings.TrimSpace(e.DistributionDestination)
	e.Requester = strings.TrimSpace(e.Requester)
	e.Remarks = strings.TrimSpace(e.Remarks)
	return e
}

// ValidateNewEntry rejects an entry with blank required fields or negative
// quantities. Absent quantities are zero and pass.
func ValidateNewEntry(candidate Entry) error {
	err := validate.Struct(Normalize(candidate))
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			verr.Missing = append(verr.Missing, fe.Field())
		case "gte":
			verr.Negative = append(verr.Negative, fe.Field())
		}
	}
	return verr
}
