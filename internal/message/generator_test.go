package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want string
	}{
		{
			name: "paged result",
			ctx: Context{Singular: "feature", Plural: "features", TotalRecords: 100, Returned: 50, Limit: 50, HasMore: true},
			want: "Found 100 features, returning first 50. Use startWith=50 to get the next batch",
		},
		{
			name: "complete result",
			ctx:  Context{Singular: "note", Plural: "notes", TotalRecords: 12, Returned: 12, Limit: 50},
			want: "Found 12 notes",
		},
		{
			name: "single record",
			ctx:  Context{Singular: "company", Plural: "companies", TotalRecords: 1, Returned: 1, Limit: 50},
			want: "Found 1 company",
		},
		{
			name: "later batch",
			ctx:  Context{Plural: "features", TotalRecords: 120, Returned: 50, StartWith: 50, Limit: 50, HasMore: true},
			want: "Found 120 features, returning next 50 (starting at 50). Use startWith=100 to get the next batch",
		},
		{
			name: "empty",
			ctx:  Context{Plural: "features", Limit: 50},
			want: "No features found matching the search criteria",
		},
		{
			name: "missing filter",
			ctx: Context{Plural: "features", TotalRecords: 3, Returned: 3, Limit: 50,
				Filters: []FilterDescription{{Field: "description", Operator: "equals", Value: ""}}},
			want: "Found 3 features. Filtered by: missing description",
		},
		{
			name: "lower bound and partial",
			ctx: Context{Plural: "notes", TotalRecords: 51, TotalIsLowerBound: true, Returned: 50, Limit: 50, HasMore: true,
				Partial: true},
			want: "Found at least 51 notes, returning first 50. Use startWith=50 to get the next batch. Results are incomplete because a later page could not be fetched",
		},
		{
			name: "no display names",
			ctx:  Context{TotalRecords: 2, Returned: 2, Limit: 50},
			want: "Found 2 records",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Generate(tt.ctx))
		})
	}
}

func TestGenerate_DescribesOperators(t *testing.T) {
	msg := Generate(Context{Plural: "features", TotalRecords: 1, Returned: 1, Filters: []FilterDescription{
		{Field: "status", Operator: "equals", Value: "Done"},
		{Field: "name", Operator: "contains", Value: "export"},
		{Field: "created", Operator: "after", Value: "2024-01-01"},
		{Field: "owner", Operator: "isEmpty"},
	}})

	assert.Equal(t, `Found 1 features. Filtered by: created after 2024-01-01, missing owner, name contains "export", status = Done`, msg)
}

func TestHints(t *testing.T) {
	t.Run("empty with filters suggests relaxing", func(t *testing.T) {
		hints := Hints(Context{Plural: "features", Filters: []FilterDescription{{Field: "owner email", Value: "x"}}})
		require.Len(t, hints, 1)
		assert.Contains(t, hints[0], "Owner Email")
	})

	t.Run("large full page suggests compact output and paging", func(t *testing.T) {
		hints := Hints(Context{Plural: "features", TotalRecords: 100, Returned: 50, Limit: 50, HasMore: true})
		require.Len(t, hints, 3)
		assert.Contains(t, hints[0], "startWith=50")
		assert.Contains(t, hints[1], "summary")
		assert.Contains(t, hints[2], "Features")
	})

	t.Run("partial comes first", func(t *testing.T) {
		hints := Hints(Context{Plural: "notes", TotalRecords: 5, Returned: 5, Limit: 50, Partial: true, OutputMode: "ids-only"})
		require.Len(t, hints, 1)
		assert.Contains(t, hints[0], "Some pages failed")
	})
}
