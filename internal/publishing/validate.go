package publishing

import (
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/postpilot/postpilot-backend/pkg/validation"
)

// validationSummary renders validator errors as "field must ..." pairs.
func validationSummary(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	parts := make([]string, 0, len(errs))
	for _, fieldErr := range errs {
		parts = append(parts, fieldErr.Field()+" "+validation.Message(fieldErr))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
