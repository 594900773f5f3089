package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strptr(s string) *string { return &s }

func TestResolveField(t *testing.T) {
	tests := []struct {
		name      string
		canonical *string
		duplicate *string
		outcome   FieldOutcome
		value     *string
		discarded *string
	}{
		{"both nil", nil, nil, FieldCanonicalWins, nil, nil},
		{"canonical nil", nil, strptr("x"), FieldDuplicateFills, strptr("x"), nil},
		{"canonical empty string", strptr(""), strptr("x"), FieldDuplicateFills, strptr("x"), nil},
		{"duplicate nil", strptr("x"), nil, FieldCanonicalWins, strptr("x"), nil},
		{"equal values", strptr("x"), strptr("x"), FieldCanonicalWins, strptr("x"), nil},
		{"conflict", strptr("x"), strptr("y"), FieldConflict, strptr("x"), strptr("y")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ResolveField("field", tt.canonical, tt.duplicate)
			assert.Equal(t, tt.outcome, res.Outcome)
			if tt.value == nil {
				assert.Nil(t, res.Value)
			} else {
				assert.Equal(t, *tt.value, *res.Value)
			}
			if tt.discarded == nil {
				assert.Nil(t, res.Discarded)
			} else {
				assert.Equal(t, *tt.discarded, *res.Discarded)
			}
		})
	}
}

func TestResolveField_ConflictKeepsCanonical(t *testing.T) {
	res := ResolveField("display_name", strptr("Maria Santos"), strptr("M. Santos"))
	assert.Equal(t, FieldConflict, res.Outcome)
	assert.Equal(t, "Maria Santos", *res.Value)
	assert.Equal(t, "M. Santos", *res.Discarded)
}

func TestResolveFields_PreservesOrder(t *testing.T) {
	pairs := []FieldPair{
		{Name: "first_name", Canonical: strptr("Maria"), Duplicate: nil},
		{Name: "last_name", Canonical: nil, Duplicate: strptr("Santos")},
		{Name: "email", Canonical: strptr("a@x.org"), Duplicate: strptr("b@x.org")},
	}

	out := ResolveFields(pairs)
	assert.Len(t, out, 3)
	assert.Equal(t, "first_name", out[0].Field)
	assert.Equal(t, FieldCanonicalWins, out[0].Outcome)
	assert.Equal(t, "last_name", out[1].Field)
	assert.Equal(t, FieldDuplicateFills, out[1].Outcome)
	assert.Equal(t, "email", out[2].Field)
	assert.Equal(t, FieldConflict, out[2].Outcome)
}
