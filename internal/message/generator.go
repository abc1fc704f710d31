// Package message renders human-readable summaries and follow-up hints
// for search results. Nothing here can fail.
package message

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FilterDescription is one applied filter in display form
type FilterDescription struct {
	Field    string // display name, e.g. "description"
	Operator string
	Value    string
}

// Context carries everything the generator needs
type Context struct {
	Singular     string
	Plural       string
	TotalRecords int
	// TotalIsLowerBound is set when retrieval stopped before the end of
	// the collection, so TotalRecords is a minimum.
	TotalIsLowerBound bool
	Returned          int
	StartWith         int
	Limit             int
	HasMore           bool
	Filters           []FilterDescription
	OutputMode        string
	Partial           bool
}

// NextStartWith is the offset of the next batch
func (c Context) NextStartWith() int {
	return c.StartWith + c.Returned
}

func (c Context) plural() string {
	if c.Plural == "" {
		return "records"
	}
	return c.Plural
}

func (c Context) noun(n int) string {
	if n == 1 && c.Singular != "" {
		return c.Singular
	}
	return c.plural()
}

// Generate returns the one-paragraph summary of a result
func Generate(c Context) string {
	var b strings.Builder

	if c.TotalRecords == 0 {
		b.WriteString(fmt.Sprintf("No %s found matching the search criteria", c.plural()))
	} else {
		count := fmt.Sprintf("%d", c.TotalRecords)
		if c.TotalIsLowerBound {
			count = "at least " + count
		}
		b.WriteString(fmt.Sprintf("Found %s %s", count, c.noun(c.TotalRecords)))

		if c.HasMore || c.StartWith > 0 {
			b.WriteString(fmt.Sprintf(", returning %s %d", position(c.StartWith), c.Returned))
			if c.StartWith > 0 {
				b.WriteString(fmt.Sprintf(" (starting at %d)", c.StartWith))
			}
		}
		if c.HasMore {
			b.WriteString(fmt.Sprintf(". Use startWith=%d to get the next batch", c.NextStartWith()))
		}
	}

	if filters := describeFilters(c.Filters); filters != "" {
		b.WriteString(". Filtered by: ")
		b.WriteString(filters)
	}

	if c.Partial {
		b.WriteString(". Results are incomplete because a later page could not be fetched")
	}

	return b.String()
}

func position(startWith int) string {
	if startWith == 0 {
		return "first"
	}
	return "next"
}

func describeFilters(filters []FilterDescription) string {
	if len(filters) == 0 {
		return ""
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		parts = append(parts, describeFilter(f))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func describeFilter(f FilterDescription) string {
	switch f.Operator {
	case "isEmpty":
		return "missing " + f.Field
	case "isNotEmpty":
		return "has " + f.Field
	}
	if f.Value == "" && (f.Operator == "" || f.Operator == "equals") {
		return "missing " + f.Field
	}
	switch f.Operator {
	case "contains":
		return fmt.Sprintf("%s contains %q", f.Field, f.Value)
	case "startsWith":
		return fmt.Sprintf("%s starts with %q", f.Field, f.Value)
	case "endsWith":
		return fmt.Sprintf("%s ends with %q", f.Field, f.Value)
	case "before":
		return fmt.Sprintf("%s before %s", f.Field, f.Value)
	case "after":
		return fmt.Sprintf("%s after %s", f.Field, f.Value)
	default:
		return fmt.Sprintf("%s = %s", f.Field, f.Value)
	}
}

const largeResult = 25

// Hints suggests follow-up actions, most useful first
func Hints(c Context) []string {
	var hints []string
	title := cases.Title(language.English)

	if c.Partial {
		hints = append(hints, "Some pages failed to load; repeat the search to try to get the complete set")
	}

	if c.TotalRecords == 0 {
		if len(c.Filters) > 0 {
			fields := make([]string, 0, len(c.Filters))
			for _, f := range c.Filters {
				fields = append(fields, title.String(f.Field))
			}
			sort.Strings(fields)
			hints = append(hints, fmt.Sprintf("Try removing or relaxing filters (%s) to broaden the search", strings.Join(fields, ", ")))
		} else {
			hints = append(hints, fmt.Sprintf("No %s exist in this workspace, or the token cannot see them", c.plural()))
		}
		return hints
	}

	if c.HasMore {
		hints = append(hints, fmt.Sprintf("Use startWith=%d with the same filters to fetch the next %d", c.NextStartWith(), c.Limit))
	}

	if c.Returned >= largeResult && (c.OutputMode == "" || c.OutputMode == "full") {
		hints = append(hints, `Use output="summary" or output="ids-only" (or a list of fields) for a more compact response`)
	}

	if len(c.Filters) == 0 && c.TotalRecords > c.Limit && c.Limit > 0 {
		hints = append(hints, fmt.Sprintf("Add filters to narrow down the %s", title.String(c.plural())))
	}

	return hints
}
