// Package domain defines the persistent genealogy entities, value types, and
// rule evaluation primitives used by dzinza.
package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityFamilyTree identifies a family tree record.
	EntityFamilyTree EntityType = "family_tree"
	// EntityPerson identifies a person record.
	EntityPerson EntityType = "person"
	// EntityRelationship identifies a relationship edge.
	EntityRelationship EntityType = "relationship"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TreeStatistics holds counters maintained alongside person and relationship writes.
type TreeStatistics struct {
	TotalPersons       int `json:"total_persons"`
	TotalRelationships int `json:"total_relationships"`
}

// Collaborator grants a user access to a family tree they do not own.
type Collaborator struct {
	UserID string           `json:"user_id"`
	Role   CollaboratorRole `json:"role"`
}

// FamilyTree is the access-control and statistics boundary for persons and relationships.
type FamilyTree struct {
	Base
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	OwnerID       string         `json:"owner_id"`
	Visibility    TreeVisibility `json:"visibility"`
	Collaborators []Collaborator `json:"collaborators,omitempty"`
	Statistics    TreeStatistics `json:"statistics"`
}

// CollaboratorRole returns the role held by userID, if any.
func (t FamilyTree) CollaboratorRole(userID string) (CollaboratorRole, bool) {
	for _, c := range t.Collaborators {
		if c.UserID == userID {
			return c.Role, true
		}
	}
	return "", false
}

// PersonIdentifier is a typed external identifier such as a passport number.
type PersonIdentifier struct {
	Type         IdentifierType     `json:"type"`
	Value        string             `json:"value"`
	Verification VerificationStatus `json:"verification"`
}

// LegalParent mirrors a PARENT_CHILD edge carrying a legal relationship type.
type LegalParent struct {
	ParentID       string          `json:"parent_id"`
	Type           LegalParentType `json:"type"`
	RelationshipID string          `json:"relationship_id,omitempty"`
}

// SpouseLink mirrors a SPOUSE edge.
type SpouseLink struct {
	SpouseID       string `json:"spouse_id"`
	RelationshipID string `json:"relationship_id,omitempty"`
}

// SiblingLink mirrors a SIBLING edge.
type SiblingLink struct {
	SiblingID      string `json:"sibling_id"`
	RelationshipID string `json:"relationship_id,omitempty"`
}

// PrivacySettings controls who may read a person profile.
type PrivacySettings struct {
	ShowProfile ProfileVisibility `json:"show_profile"`
}

// Person represents one individual in a family tree. The parent, spouse and
// sibling fields are a cache of the tree's Relationship edges and are only
// written by the coordinator.
type Person struct {
	Base
	FamilyTreeID string `json:"family_tree_id"`
	Identifier   string `json:"identifier"`

	FirstName  string `json:"first_name,omitempty"`
	MiddleName string `json:"middle_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	MaidenName string `json:"maiden_name,omitempty"`
	Nickname   string `json:"nickname,omitempty"`
	Gender     Gender `json:"gender"`

	BirthDate          *time.Time `json:"birth_date,omitempty"`
	BirthDateEstimated bool       `json:"birth_date_estimated,omitempty"`
	BirthPlace         string     `json:"birth_place,omitempty"`
	DeathDate          *time.Time `json:"death_date,omitempty"`
	DeathDateEstimated bool       `json:"death_date_estimated,omitempty"`
	DeathPlace         string     `json:"death_place,omitempty"`
	CauseOfDeath       string     `json:"cause_of_death,omitempty"`

	Notes       string             `json:"notes,omitempty"`
	Titles      []string           `json:"titles,omitempty"`
	Identifiers []PersonIdentifier `json:"identifiers,omitempty"`

	BiologicalMotherID *string       `json:"biological_mother_id,omitempty"`
	BiologicalFatherID *string       `json:"biological_father_id,omitempty"`
	LegalParents       []LegalParent `json:"legal_parents,omitempty"`
	Spouses            []SpouseLink  `json:"spouses,omitempty"`
	Siblings           []SiblingLink `json:"siblings,omitempty"`

	Privacy PrivacySettings `json:"privacy_settings"`
}

// IsLiving reports whether no death date has been recorded.
func (p Person) IsLiving() bool {
	return p.DeathDate == nil
}

// DisplayName joins the populated name parts.
func (p Person) DisplayName() string {
	name := p.FirstName
	if p.LastName != "" {
		if name != "" {
			name += " "
		}
		name += p.LastName
	}
	if name == "" {
		return p.Identifier
	}
	return name
}

// ReferencedPersonIDs lists every person id held in the person's pointer fields.
func (p Person) ReferencedPersonIDs() []string {
	var out []string
	if p.BiologicalMotherID != nil {
		out = append(out, *p.BiologicalMotherID)
	}
	if p.BiologicalFatherID != nil {
		out = append(out, *p.BiologicalFatherID)
	}
	for _, lp := range p.LegalParents {
		out = append(out, lp.ParentID)
	}
	for _, s := range p.Spouses {
		out = append(out, s.SpouseID)
	}
	for _, s := range p.Siblings {
		out = append(out, s.SiblingID)
	}
	return out
}

// References reports whether any pointer field names id.
func (p Person) References(id string) bool {
	for _, ref := range p.ReferencedPersonIDs() {
		if ref == id {
			return true
		}
	}
	return false
}

// RemoveReferencesTo clears every pointer naming id and reports whether anything changed.
func (p *Person) RemoveReferencesTo(id string) bool {
	changed := false
	if p.BiologicalMotherID != nil && *p.BiologicalMotherID == id {
		p.BiologicalMotherID = nil
		changed = true
	}
	if p.BiologicalFatherID != nil && *p.BiologicalFatherID == id {
		p.BiologicalFatherID = nil
		changed = true
	}
	if n := len(p.LegalParents); n > 0 {
		kept := make([]LegalParent, 0, n)
		for _, lp := range p.LegalParents {
			if lp.ParentID != id {
				kept = append(kept, lp)
			}
		}
		changed = changed || len(kept) != n
		p.LegalParents = kept
	}
	if n := len(p.Spouses); n > 0 {
		kept := make([]SpouseLink, 0, n)
		for _, s := range p.Spouses {
			if s.SpouseID != id {
				kept = append(kept, s)
			}
		}
		changed = changed || len(kept) != n
		p.Spouses = kept
	}
	if n := len(p.Siblings); n > 0 {
		kept := make([]SiblingLink, 0, n)
		for _, s := range p.Siblings {
			if s.SiblingID != id {
				kept = append(kept, s)
			}
		}
		changed = changed || len(kept) != n
		p.Siblings = kept
	}
	return changed
}

type personAlias Person

// MarshalJSON adds the derived is_living flag.
func (p Person) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		personAlias
		IsLiving bool `json:"is_living"`
	}{personAlias: personAlias(p), IsLiving: p.IsLiving()})
}

// UnmarshalJSON ignores the derived is_living flag.
func (p *Person) UnmarshalJSON(data []byte) error {
	var aux personAlias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Person(aux)
	return nil
}

// Relationship is the authoritative edge between two persons. PARENT_CHILD
// edges are directional with Person1ID as the parent.
type Relationship struct {
	Base
	FamilyTreeID string           `json:"family_tree_id"`
	Person1ID    string           `json:"person1_id"`
	Person2ID    string           `json:"person2_id"`
	Type         RelationshipType `json:"type"`
	// LegalType is set for legal parent edges and empty for biological ones.
	LegalType LegalParentType `json:"legal_type,omitempty"`
	StartDate *time.Time      `json:"start_date,omitempty"`
	EndDate   *time.Time      `json:"end_date,omitempty"`
	Notes     string          `json:"notes,omitempty"`
}

// Involves reports whether personID is either endpoint.
func (r Relationship) Involves(personID string) bool {
	return r.Person1ID == personID || r.Person2ID == personID
}

// Other returns the opposite endpoint to personID.
func (r Relationship) Other(personID string) string {
	if r.Person1ID == personID {
		return r.Person2ID
	}
	return r.Person1ID
}

// Matches reports whether the edge connects a and b with type t, honouring
// direction only for PARENT_CHILD.
func (r Relationship) Matches(a, b string, t RelationshipType) bool {
	if r.Type != t {
		return false
	}
	if r.Person1ID == a && r.Person2ID == b {
		return true
	}
	return !t.Directed() && r.Person1ID == b && r.Person2ID == a
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	TreeID string
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
