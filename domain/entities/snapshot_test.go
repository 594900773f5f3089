package entities

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSnapshot_TotalEdges(t *testing.T) {
	s := &Snapshot{
		EdgeCounts: map[string]int{
			"person_places": 2,
			"person_cats":   3,
			"requests":      0,
		},
	}
	assert.Equal(t, 5, s.TotalEdges())

	empty := &Snapshot{}
	assert.Equal(t, 0, empty.TotalEdges())
}

func TestSnapshot_VerifiedIdentifiers(t *testing.T) {
	s := &Snapshot{
		Identifiers: []IdentifierClaim{
			{Kind: "phone", NormalizedValue: "5035551234", Verified: true},
			{Kind: "phone", NormalizedValue: "5035559999", Verified: false},
			{Kind: "email", NormalizedValue: "a@example.org", Verified: true},
		},
	}

	verified := s.VerifiedIdentifiers()
	assert.Len(t, verified["phone"], 1)
	assert.Equal(t, "5035551234", verified["phone"][0].NormalizedValue)
	assert.Len(t, verified["email"], 1)
}

func TestPerson_Merged(t *testing.T) {
	p := &Person{}
	assert.False(t, p.Merged())

	target := uuid.New()
	p.MergedIntoPersonID = &target
	assert.True(t, p.Merged())
}

func TestValidType(t *testing.T) {
	assert.True(t, ValidType("person"))
	assert.True(t, ValidType("place"))
	assert.False(t, ValidType("cat"))
	assert.False(t, ValidType(""))
}
