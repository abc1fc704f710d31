package tools

import (
	"strings"
	"time"

	mcperrors "productboard-mcp/internal/errors"
)

const dateLayout = "2006-01-02"

// StringArg returns args[name] as a trimmed string
func StringArg(args map[string]interface{}, name string) (string, bool) {
	s, ok := args[name].(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// ValidateEnum checks an optional string argument against allowed values
func ValidateEnum(args map[string]interface{}, name string, allowed ...string) error {
	v, ok := args[name]
	if !ok || v == nil {
		return nil
	}
	s, isString := v.(string)
	if isString {
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
	}
	return mcperrors.NewValidationError(name, "must be one of "+strings.Join(allowed, ", "), v)
}

// ValidateTimeframe checks timeframe.startDate and timeframe.endDate are
// YYYY-MM-DD dates and that the range is not inverted.
func ValidateTimeframe(args map[string]interface{}) error {
	start, err := dateArg(args, "timeframe.startDate")
	if err != nil {
		return err
	}
	end, err := dateArg(args, "timeframe.endDate")
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return mcperrors.NewValidationError("timeframe.endDate", "must not be before timeframe.startDate", args["timeframe.endDate"])
	}
	return ValidateEnum(args, "timeframe.granularity", "year", "quarter", "month", "day", "none")
}

func dateArg(args map[string]interface{}, name string) (time.Time, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return time.Time{}, nil
	}
	s, isString := v.(string)
	if !isString {
		return time.Time{}, mcperrors.NewValidationError(name, "must be a date in YYYY-MM-DD format", v)
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, mcperrors.NewValidationError(name, "must be a date in YYYY-MM-DD format", s)
	}
	return t, nil
}
