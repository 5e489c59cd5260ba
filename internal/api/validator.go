package api

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// eventNameRegex keeps event names on one SSE line and free of the field separator
var eventNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("event_name", func(fl validator.FieldLevel) bool {
		return eventNameRegex.MatchString(fl.Field().String())
	})
}

// validationDetails flattens validator errors into the envelope's details map
func validationDetails(err error) map[string][]string {
	details := make(map[string][]string)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		details["body"] = []string{err.Error()}
		return details
	}

	for _, fe := range verrs {
		field := jsonFieldName(fe.Field())
		switch fe.Tag() {
		case "required":
			details[field] = append(details[field], field+" is required")
		case "max":
			details[field] = append(details[field], field+" must not exceed "+fe.Param()+" characters")
		case "event_name":
			details[field] = append(details[field], field+" must start with a letter and contain only letters, digits, '_', '.', '-'")
		default:
			details[field] = append(details[field], field+" is invalid")
		}
	}
	return details
}

func jsonFieldName(field string) string {
	switch field {
	case "Event":
		return "event"
	case "Message":
		return "message"
	case "Payload":
		return "payload"
	}
	return field
}
