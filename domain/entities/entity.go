package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Entity type discriminators used across the dedup surface.
const (
	TypePerson = "person"
	TypePlace  = "place"
)

// ValidType reports whether s names a known entity type.
func ValidType(s string) bool {
	return s == TypePerson || s == TypePlace
}

// Person is a canonical person record. A merged person keeps its row with
// MergedIntoPersonID set and is only reachable through alias resolution.
type Person struct {
	bun.BaseModel `bun:"table:trapper.people,alias:p"`

	ID              uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	DisplayName     string    `bun:"display_name,notnull" json:"display_name"`
	FirstName       *string   `bun:"first_name" json:"first_name,omitempty"`
	LastName        *string   `bun:"last_name" json:"last_name,omitempty"`
	Email           *string   `bun:"email" json:"email,omitempty"`
	Phone           *string   `bun:"phone" json:"phone,omitempty"`
	PhoneNormalized *string   `bun:"phone_normalized" json:"phone_normalized,omitempty"`
	AddressDisplay  *string   `bun:"address_display" json:"address_display,omitempty"`

	MergedIntoPersonID *uuid.UUID `bun:"merged_into_person_id,type:uuid" json:"merged_into_person_id,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// Merged reports whether this person has been absorbed into another record.
func (p *Person) Merged() bool {
	return p.MergedIntoPersonID != nil
}

// Place is a canonical place record with the same alias semantics as Person.
type Place struct {
	bun.BaseModel `bun:"table:trapper.places,alias:pl"`

	ID             uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	PlaceKey       *string   `bun:"place_key" json:"place_key,omitempty"`
	DisplayName    string    `bun:"display_name,notnull" json:"display_name"`
	AddressLine    *string   `bun:"address_line" json:"address_line,omitempty"`
	City           *string   `bun:"city" json:"city,omitempty"`
	PostalCode     *string   `bun:"postal_code" json:"postal_code,omitempty"`
	Lat            *float64  `bun:"lat" json:"lat,omitempty"`
	Lng            *float64  `bun:"lng" json:"lng,omitempty"`
	Classification *string   `bun:"classification" json:"classification,omitempty"`

	MergedIntoPlaceID *uuid.UUID `bun:"merged_into_place_id,type:uuid" json:"merged_into_place_id,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// Merged reports whether this place has been absorbed into another record.
func (p *Place) Merged() bool {
	return p.MergedIntoPlaceID != nil
}

// PersonIdentifier is a matchable claim about a person (email, phone, address).
// Verified rows were confirmed by staff and carry extra weight in safety checks.
type PersonIdentifier struct {
	bun.BaseModel `bun:"table:trapper.person_identifiers,alias:pi"`

	ID              uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	PersonID        uuid.UUID `bun:"person_id,type:uuid,notnull" json:"person_id"`
	Kind            string    `bun:"kind,notnull" json:"kind"`
	Value           string    `bun:"value,notnull" json:"value"`
	NormalizedValue string    `bun:"normalized_value,notnull" json:"normalized_value"`
	Verified        bool      `bun:"verified,notnull,default:false" json:"verified"`
	VerifiedBy      *string   `bun:"verified_by" json:"verified_by,omitempty"`
	SourceSystem    *string   `bun:"source_system" json:"source_system,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// PlaceIdentifier mirrors PersonIdentifier for places.
type PlaceIdentifier struct {
	bun.BaseModel `bun:"table:trapper.place_identifiers,alias:pli"`

	ID              uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	PlaceID         uuid.UUID `bun:"place_id,type:uuid,notnull" json:"place_id"`
	Kind            string    `bun:"kind,notnull" json:"kind"`
	Value           string    `bun:"value,notnull" json:"value"`
	NormalizedValue string    `bun:"normalized_value,notnull" json:"normalized_value"`
	Verified        bool      `bun:"verified,notnull,default:false" json:"verified"`
	VerifiedBy      *string   `bun:"verified_by" json:"verified_by,omitempty"`
	SourceSystem    *string   `bun:"source_system" json:"source_system,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// PersonPlace links a person to a place with a role (contact, trapper, feeder).
type PersonPlace struct {
	bun.BaseModel `bun:"table:trapper.person_places,alias:pp"`

	ID        uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	PersonID  uuid.UUID `bun:"person_id,type:uuid,notnull" json:"person_id"`
	PlaceID   uuid.UUID `bun:"place_id,type:uuid,notnull" json:"place_id"`
	Role      string    `bun:"role,notnull,default:'contact'" json:"role"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// PersonCat links a person to a cat.
type PersonCat struct {
	bun.BaseModel `bun:"table:trapper.person_cats,alias:pc"`

	ID           uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	PersonID     uuid.UUID `bun:"person_id,type:uuid,notnull" json:"person_id"`
	CatID        uuid.UUID `bun:"cat_id,type:uuid,notnull" json:"cat_id"`
	Relationship string    `bun:"relationship,notnull,default:'caretaker'" json:"relationship"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// PersonSourceLink ties a person to the upstream record it was normalized from.
type PersonSourceLink struct {
	bun.BaseModel `bun:"table:trapper.person_source_links,alias:psl"`

	ID           uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	PersonID     uuid.UUID `bun:"person_id,type:uuid,notnull" json:"person_id"`
	SourceSystem string    `bun:"source_system,notnull" json:"source_system"`
	SourcePK     string    `bun:"source_pk,notnull" json:"source_pk"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// Request is a trapping request. Only the FK columns matter to the dedup core.
type Request struct {
	bun.BaseModel `bun:"table:trapper.requests,alias:r"`

	ID                uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Summary           string     `bun:"summary,notnull" json:"summary"`
	Status            string     `bun:"status,notnull,default:'new'" json:"status"`
	RequesterPersonID *uuid.UUID `bun:"requester_person_id,type:uuid" json:"requester_person_id,omitempty"`
	PlaceID           *uuid.UUID `bun:"place_id,type:uuid" json:"place_id,omitempty"`
	CreatedAt         time.Time  `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt         time.Time  `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// PlaceRelationship is a parent/child edge between places (complex, unit).
type PlaceRelationship struct {
	bun.BaseModel `bun:"table:trapper.place_relationships,alias:pr"`

	ID            uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ParentPlaceID uuid.UUID `bun:"parent_place_id,type:uuid,notnull" json:"parent_place_id"`
	ChildPlaceID  uuid.UUID `bun:"child_place_id,type:uuid,notnull" json:"child_place_id"`
	Relationship  string    `bun:"relationship,notnull,default:'contains'" json:"relationship"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// ColonySite links a colony to one of its feeding/trapping sites.
type ColonySite struct {
	bun.BaseModel `bun:"table:trapper.colony_sites,alias:cs"`

	ID        uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ColonyID  uuid.UUID `bun:"colony_id,type:uuid,notnull" json:"colony_id"`
	PlaceID   uuid.UUID `bun:"place_id,type:uuid,notnull" json:"place_id"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}
