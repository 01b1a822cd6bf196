package core

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

const identifierAttempts = 5

// LegalParentInput declares a legal parent when creating or updating a person.
type LegalParentInput struct {
	ParentID string                 `json:"parent_id"`
	Type     domain.LegalParentType `json:"type"`
}

// PersonInput carries the fields of a new person. Declared parents are linked
// with PARENT_CHILD relationships in the same transaction as the insert.
type PersonInput struct {
	Identifier string        `json:"identifier,omitempty"`
	FirstName  string        `json:"first_name,omitempty"`
	MiddleName string        `json:"middle_name,omitempty"`
	LastName   string        `json:"last_name,omitempty"`
	MaidenName string        `json:"maiden_name,omitempty"`
	Nickname   string        `json:"nickname,omitempty"`
	Gender     domain.Gender `json:"gender,omitempty"`

	BirthDate          *time.Time `json:"birth_date,omitempty"`
	BirthDateEstimated bool       `json:"birth_date_estimated,omitempty"`
	BirthPlace         string     `json:"birth_place,omitempty"`
	DeathDate          *time.Time `json:"death_date,omitempty"`
	DeathDateEstimated bool       `json:"death_date_estimated,omitempty"`
	DeathPlace         string     `json:"death_place,omitempty"`
	CauseOfDeath       string     `json:"cause_of_death,omitempty"`

	Notes       string                    `json:"notes,omitempty"`
	Titles      []string                  `json:"titles,omitempty"`
	Identifiers []domain.PersonIdentifier `json:"identifiers,omitempty"`
	Privacy     domain.PrivacySettings    `json:"privacy_settings"`

	BiologicalMotherID string             `json:"biological_mother_id,omitempty"`
	BiologicalFatherID string             `json:"biological_father_id,omitempty"`
	LegalParents       []LegalParentInput `json:"legal_parents,omitempty"`
}

// PersonPatch is a selective update. Absent fields are untouched; present
// fields replace the stored value and null or empty clears it. Spouses and
// Siblings exist only so that payloads naming them can be rejected.
type PersonPatch struct {
	Identifier Nullable[string]        `json:"identifier"`
	FirstName  Nullable[string]        `json:"first_name"`
	MiddleName Nullable[string]        `json:"middle_name"`
	LastName   Nullable[string]        `json:"last_name"`
	MaidenName Nullable[string]        `json:"maiden_name"`
	Nickname   Nullable[string]        `json:"nickname"`
	Gender     Nullable[domain.Gender] `json:"gender"`

	BirthDate          Nullable[time.Time] `json:"birth_date"`
	BirthDateEstimated Nullable[bool]      `json:"birth_date_estimated"`
	BirthPlace         Nullable[string]    `json:"birth_place"`
	DeathDate          Nullable[time.Time] `json:"death_date"`
	DeathDateEstimated Nullable[bool]      `json:"death_date_estimated"`
	DeathPlace         Nullable[string]    `json:"death_place"`
	CauseOfDeath       Nullable[string]    `json:"cause_of_death"`

	Notes       Nullable[string]                    `json:"notes"`
	Titles      Nullable[[]string]                  `json:"titles"`
	Identifiers Nullable[[]domain.PersonIdentifier] `json:"identifiers"`
	Privacy     Nullable[domain.PrivacySettings]    `json:"privacy_settings"`

	BiologicalMotherID Nullable[string]             `json:"biological_mother_id"`
	BiologicalFatherID Nullable[string]             `json:"biological_father_id"`
	LegalParents       Nullable[[]LegalParentInput] `json:"legal_parents"`

	Spouses  json.RawMessage `json:"spouses,omitempty"`
	Siblings json.RawMessage `json:"siblings,omitempty"`
}

// ParentSummary is a resolved parent pointer.
type ParentSummary struct {
	ID          string        `json:"id"`
	Identifier  string        `json:"identifier"`
	DisplayName string        `json:"display_name"`
	Gender      domain.Gender `json:"gender"`
}

// LegalParentSummary is a resolved legal parent pointer.
type LegalParentSummary struct {
	ParentSummary
	Type domain.LegalParentType `json:"type"`
}

// PersonDetails is a person with its parent pointers resolved.
type PersonDetails struct {
	Person           Person               `json:"person"`
	BiologicalMother *ParentSummary       `json:"biological_mother,omitempty"`
	BiologicalFather *ParentSummary       `json:"biological_father,omitempty"`
	LegalParents     []LegalParentSummary `json:"legal_parents,omitempty"`
}

func defaultIdentifier() string {
	return "I" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func summarize(p Person) ParentSummary {
	return ParentSummary{ID: p.ID, Identifier: p.Identifier, DisplayName: p.DisplayName(), Gender: p.Gender}
}

// resolveDetails summarizes the parents of p that the caller may see. Pointers
// to hidden persons are removed from the returned record.
func resolveDetails(view TransactionView, p Person, access profileAccess) PersonDetails {
	p = access.redact(view, p)
	details := PersonDetails{Person: p}
	if p.BiologicalMotherID != nil {
		if m, ok := view.FindPerson(*p.BiologicalMotherID); ok && access.sees(m) {
			s := summarize(m)
			details.BiologicalMother = &s
		}
	}
	if p.BiologicalFatherID != nil {
		if f, ok := view.FindPerson(*p.BiologicalFatherID); ok && access.sees(f) {
			s := summarize(f)
			details.BiologicalFather = &s
		}
	}
	for _, lp := range p.LegalParents {
		if parent, ok := view.FindPerson(lp.ParentID); ok && access.sees(parent) {
			details.LegalParents = append(details.LegalParents, LegalParentSummary{ParentSummary: summarize(parent), Type: lp.Type})
		}
	}
	return details
}

// validatePerson checks the biographical fields of p.
func validatePerson(p *Person) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" && p.LastName == "" {
		return invalid("first name or last name is required")
	}
	if p.Gender == "" {
		p.Gender = domain.GenderUnknown
	}
	if !p.Gender.Valid() {
		return invalid("unknown gender %q", p.Gender)
	}
	if p.Privacy.ShowProfile == "" {
		p.Privacy.ShowProfile = domain.ProfileFamilyTreeOnly
	}
	if !p.Privacy.ShowProfile.Valid() {
		return invalid("unknown profile visibility %q", p.Privacy.ShowProfile)
	}
	for i := range p.Identifiers {
		id := &p.Identifiers[i]
		if !id.Type.Valid() {
			return invalid("unknown identifier type %q", id.Type)
		}
		id.Value = strings.TrimSpace(id.Value)
		if id.Value == "" {
			return invalid("identifier of type %s has no value", id.Type)
		}
		if id.Verification == "" {
			id.Verification = domain.VerificationUnverified
		}
		if !id.Verification.Valid() {
			return invalid("unknown verification status %q", id.Verification)
		}
	}
	if p.BirthDate != nil && p.DeathDate != nil && p.DeathDate.Before(*p.BirthDate) {
		return invalid("death date precedes birth date")
	}
	return nil
}

func personFromInput(treeID string, in PersonInput) Person {
	return Person{
		FamilyTreeID:       treeID,
		Identifier:         strings.TrimSpace(in.Identifier),
		FirstName:          in.FirstName,
		MiddleName:         in.MiddleName,
		LastName:           in.LastName,
		MaidenName:         in.MaidenName,
		Nickname:           in.Nickname,
		Gender:             in.Gender,
		BirthDate:          in.BirthDate,
		BirthDateEstimated: in.BirthDateEstimated,
		BirthPlace:         in.BirthPlace,
		DeathDate:          in.DeathDate,
		DeathDateEstimated: in.DeathDateEstimated,
		DeathPlace:         in.DeathPlace,
		CauseOfDeath:       in.CauseOfDeath,
		Notes:              in.Notes,
		Titles:             in.Titles,
		Identifiers:        in.Identifiers,
		Privacy:            in.Privacy,
	}
}

// parentEdges turns declared parents into edge specs for child, rejecting
// duplicates and unknown legal types.
func parentEdges(treeID, childID, motherID, fatherID string, legal []LegalParentInput) ([]edgeSpec, error) {
	var specs []edgeSpec
	seen := make(map[string]struct{})
	add := func(spec edgeSpec) error {
		if _, dup := seen[spec.person1]; dup {
			return invalid("parent %s is declared more than once", spec.person1)
		}
		seen[spec.person1] = struct{}{}
		specs = append(specs, spec)
		return nil
	}
	if motherID != "" {
		if err := add(edgeSpec{treeID: treeID, person1: motherID, person2: childID, relType: domain.RelationshipParentChild, role: domain.RoleMother}); err != nil {
			return nil, err
		}
	}
	if fatherID != "" {
		if err := add(edgeSpec{treeID: treeID, person1: fatherID, person2: childID, relType: domain.RelationshipParentChild, role: domain.RoleFather}); err != nil {
			return nil, err
		}
	}
	for _, lp := range legal {
		if lp.ParentID == "" {
			return nil, invalid("legal parent id is required")
		}
		if !lp.Type.Valid() {
			return nil, invalid("unknown legal parent type %q", lp.Type)
		}
		if err := add(edgeSpec{treeID: treeID, person1: lp.ParentID, person2: childID, relType: domain.RelationshipParentChild, legalType: lp.Type}); err != nil {
			return nil, err
		}
	}
	return specs, nil
}

// requireParents reports a validation error for declared parents that do not
// resolve to persons of the tree.
func requireParents(view TransactionView, treeID string, specs []edgeSpec) error {
	for _, spec := range specs {
		p, ok := view.FindPerson(spec.person1)
		if !ok || p.FamilyTreeID != treeID {
			return invalid("parent %s does not exist in family tree %s", spec.person1, treeID)
		}
	}
	return nil
}

func identifierInUse(view TransactionView, treeID, identifier, exceptID string) bool {
	for _, p := range view.ListPersons(treeID) {
		if p.Identifier == identifier && p.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Service) assignIdentifier(view TransactionView, treeID string) (string, error) {
	for range identifierAttempts {
		candidate := s.newIdent()
		if !identifierInUse(view, treeID, candidate, "") {
			return candidate, nil
		}
	}
	return "", conflict("could not allocate a unique identifier in family tree %s", treeID)
}

// CreatePerson inserts a person and links every declared parent in one
// transaction.
func (s *Service) CreatePerson(ctx context.Context, treeID, actorID string, in PersonInput) (Person, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpCreatePerson, treeID, actorID)
	created, err := s.createPerson(ctx, treeID, actorID, in)
	op.end(ctx, created.ID, err)
	return created, err
}

func (s *Service) createPerson(ctx context.Context, treeID, actorID string, in PersonInput) (Person, error) {
	if err := s.authorizeEdit(ctx, treeID, actorID); err != nil {
		return Person{}, err
	}
	draft := personFromInput(treeID, in)
	if err := validatePerson(&draft); err != nil {
		return Person{}, err
	}
	if _, err := parentEdges(treeID, "", in.BiologicalMotherID, in.BiologicalFatherID, in.LegalParents); err != nil {
		return Person{}, err
	}

	var created Person
	err := s.mutate(ctx, OpCreatePerson, treeID, func(tx Transaction) error {
		view := tx.Snapshot()
		person := draft
		if person.Identifier == "" {
			ident, err := s.assignIdentifier(view, treeID)
			if err != nil {
				return err
			}
			person.Identifier = ident
		}
		specs, err := parentEdges(treeID, "", in.BiologicalMotherID, in.BiologicalFatherID, in.LegalParents)
		if err != nil {
			return err
		}
		if err := requireParents(view, treeID, specs); err != nil {
			return err
		}
		stored, err := tx.CreatePerson(person)
		if err != nil {
			return err
		}
		for _, spec := range specs {
			spec.person2 = stored.ID
			if _, err := connect(tx, spec); err != nil {
				return err
			}
		}
		if _, err := tx.AdjustTreeStatistics(treeID, 1, len(specs)); err != nil {
			return err
		}
		created, _ = tx.Snapshot().FindPerson(stored.ID)
		return nil
	})
	if err != nil {
		return Person{}, err
	}
	return created, nil
}

// GetPerson returns a person with parents resolved. Private profiles need
// edit rights, tree-only profiles need view rights and public profiles are
// visible to any caller.
func (s *Service) GetPerson(ctx context.Context, treeID, actorID, personID string) (PersonDetails, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpGetPerson, treeID, actorID)
	details, err := s.getPerson(ctx, treeID, actorID, personID)
	op.end(ctx, personID, err)
	return details, err
}

func (s *Service) getPerson(ctx context.Context, treeID, actorID, personID string) (PersonDetails, error) {
	if err := requireActor(actorID); err != nil {
		return PersonDetails{}, err
	}
	if err := s.requireTree(ctx, treeID); err != nil {
		return PersonDetails{}, err
	}
	access, err := s.accessFor(ctx, treeID, actorID)
	if err != nil {
		return PersonDetails{}, err
	}
	var details PersonDetails
	err = s.view(ctx, func(view TransactionView) error {
		p, ok := view.FindPerson(personID)
		if !ok || p.FamilyTreeID != treeID {
			return notFound("person %s not found in family tree %s", personID, treeID)
		}
		if !access.sees(p) {
			return forbidden("user %s may not view person %s", actorID, p.ID)
		}
		details = resolveDetails(view, p, access)
		return nil
	})
	if err != nil {
		return PersonDetails{}, err
	}
	return details, nil
}

// ListPersons returns the persons of a tree visible to the caller.
func (s *Service) ListPersons(ctx context.Context, treeID, actorID string) ([]Person, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpListPersons, treeID, actorID)
	persons, err := s.listPersons(ctx, treeID, actorID)
	op.end(ctx, "", err)
	return persons, err
}

func (s *Service) listPersons(ctx context.Context, treeID, actorID string) ([]Person, error) {
	if err := s.authorizeView(ctx, treeID, actorID); err != nil {
		return nil, err
	}
	access, err := s.accessFor(ctx, treeID, actorID)
	if err != nil {
		return nil, err
	}
	var persons []Person
	err = s.view(ctx, func(view TransactionView) error {
		persons = visiblePersons(view.ListPersons(treeID), access)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return persons, nil
}

// UpdatePerson merges patch into the person. Parent fields that are present
// replace the prior parents, re-linking their relationships.
func (s *Service) UpdatePerson(ctx context.Context, treeID, actorID, personID string, patch PersonPatch) (PersonDetails, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpUpdatePerson, treeID, actorID)
	details, err := s.updatePerson(ctx, treeID, actorID, personID, patch)
	op.end(ctx, personID, err)
	return details, err
}

func (s *Service) updatePerson(ctx context.Context, treeID, actorID, personID string, patch PersonPatch) (PersonDetails, error) {
	if err := s.authorizeEdit(ctx, treeID, actorID); err != nil {
		return PersonDetails{}, err
	}
	if len(patch.Spouses) > 0 || len(patch.Siblings) > 0 {
		return PersonDetails{}, invalid("spouses and siblings are maintained through relationships and cannot be set directly")
	}
	if patch.Identifier.Set && strings.TrimSpace(patch.Identifier.orZero()) == "" {
		return PersonDetails{}, invalid("identifier cannot be cleared")
	}

	var details PersonDetails
	err := s.mutate(ctx, OpUpdatePerson, treeID, func(tx Transaction) error {
		view := tx.Snapshot()
		current, ok := view.FindPerson(personID)
		if !ok || current.FamilyTreeID != treeID {
			return notFound("person %s not found in family tree %s", personID, treeID)
		}
		if _, err := tx.UpdatePerson(personID, func(p *Person) error {
			applyScalars(patch, p)
			return validatePerson(p)
		}); err != nil {
			return err
		}
		delta, err := relinkParents(tx, treeID, current, patch)
		if err != nil {
			return err
		}
		if _, err := tx.AdjustTreeStatistics(treeID, 0, delta); err != nil {
			return err
		}
		view = tx.Snapshot()
		updated, _ := view.FindPerson(personID)
		details = resolveDetails(view, updated, fullAccess)
		return nil
	})
	if err != nil {
		return PersonDetails{}, err
	}
	return details, nil
}

func applyScalars(patch PersonPatch, p *Person) {
	if patch.Identifier.Set {
		p.Identifier = strings.TrimSpace(patch.Identifier.orZero())
	}
	patch.FirstName.apply(&p.FirstName)
	patch.MiddleName.apply(&p.MiddleName)
	patch.LastName.apply(&p.LastName)
	patch.MaidenName.apply(&p.MaidenName)
	patch.Nickname.apply(&p.Nickname)
	patch.Gender.apply(&p.Gender)
	if patch.BirthDate.Set {
		p.BirthDate = patch.BirthDate.Value
	}
	patch.BirthDateEstimated.apply(&p.BirthDateEstimated)
	patch.BirthPlace.apply(&p.BirthPlace)
	if patch.DeathDate.Set {
		p.DeathDate = patch.DeathDate.Value
	}
	patch.DeathDateEstimated.apply(&p.DeathDateEstimated)
	patch.DeathPlace.apply(&p.DeathPlace)
	patch.CauseOfDeath.apply(&p.CauseOfDeath)
	patch.Notes.apply(&p.Notes)
	patch.Titles.apply(&p.Titles)
	patch.Identifiers.apply(&p.Identifiers)
	patch.Privacy.apply(&p.Privacy)
}

// relinkParents replaces the parent pointers named by patch. Every removal is
// applied before any addition so a parent may move between slots. It returns
// the change in relationship count.
func relinkParents(tx Transaction, treeID string, current Person, patch PersonPatch) (int, error) {
	if err := validateParentSet(treeID, current, patch); err != nil {
		return 0, err
	}
	view := tx.Snapshot()
	var (
		removals  []Relationship
		additions []edgeSpec
	)
	edgeFrom := func(parentID string) (Relationship, bool) {
		return view.FindRelationshipBetween(treeID, parentID, current.ID, domain.RelationshipParentChild)
	}
	slot := func(field Nullable[string], existing *string, role domain.BiologicalRole) {
		if !field.Set {
			return
		}
		next := strings.TrimSpace(field.orZero())
		prev := ""
		if existing != nil {
			prev = *existing
		}
		if next == prev {
			return
		}
		if prev != "" {
			if rel, ok := edgeFrom(prev); ok {
				removals = append(removals, rel)
			}
		}
		if next != "" {
			additions = append(additions, edgeSpec{treeID: treeID, person1: next, person2: current.ID, relType: domain.RelationshipParentChild, role: role})
		}
	}
	slot(patch.BiologicalMotherID, current.BiologicalMotherID, domain.RoleMother)
	slot(patch.BiologicalFatherID, current.BiologicalFatherID, domain.RoleFather)

	if patch.LegalParents.Set {
		desired := patch.LegalParents.orZero()
		want := make(map[string]domain.LegalParentType, len(desired))
		for _, lp := range desired {
			want[lp.ParentID] = lp.Type
		}
		have := make(map[string]domain.LegalParentType, len(current.LegalParents))
		for _, lp := range current.LegalParents {
			have[lp.ParentID] = lp.Type
			if t, keep := want[lp.ParentID]; keep && t == lp.Type {
				continue
			}
			if rel, ok := edgeFrom(lp.ParentID); ok {
				removals = append(removals, rel)
			}
		}
		for _, lp := range desired {
			if t, ok := have[lp.ParentID]; ok && t == lp.Type {
				continue
			}
			additions = append(additions, edgeSpec{treeID: treeID, person1: lp.ParentID, person2: current.ID, relType: domain.RelationshipParentChild, legalType: lp.Type})
		}
	}

	if err := requireParents(view, treeID, additions); err != nil {
		return 0, err
	}
	for _, rel := range removals {
		if err := disconnect(tx, rel); err != nil {
			return 0, err
		}
	}
	for _, spec := range additions {
		if _, err := connect(tx, spec); err != nil {
			return 0, err
		}
	}
	return len(additions) - len(removals), nil
}

// validateParentSet checks the parents the person will have once patch is
// applied, with the rules used on creation.
func validateParentSet(treeID string, current Person, patch PersonPatch) error {
	final := func(field Nullable[string], existing *string) string {
		if field.Set {
			return strings.TrimSpace(field.orZero())
		}
		if existing != nil {
			return *existing
		}
		return ""
	}
	legal := patch.LegalParents.orZero()
	if !patch.LegalParents.Set {
		legal = make([]LegalParentInput, 0, len(current.LegalParents))
		for _, lp := range current.LegalParents {
			legal = append(legal, LegalParentInput{ParentID: lp.ParentID, Type: lp.Type})
		}
	}
	_, err := parentEdges(treeID, current.ID,
		final(patch.BiologicalMotherID, current.BiologicalMotherID),
		final(patch.BiologicalFatherID, current.BiologicalFatherID),
		legal)
	return err
}

// DeletePerson removes a person, every relationship naming them and every
// pointer to them across the tree in one transaction. Deleting an already
// deleted person reports NotFound.
func (s *Service) DeletePerson(ctx context.Context, treeID, actorID, personID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, op := s.begin(ctx, OpDeletePerson, treeID, actorID)
	err := s.deletePerson(ctx, treeID, actorID, personID)
	op.end(ctx, personID, err)
	return err
}

func (s *Service) deletePerson(ctx context.Context, treeID, actorID, personID string) error {
	if err := s.authorizeEdit(ctx, treeID, actorID); err != nil {
		return err
	}
	return s.mutate(ctx, OpDeletePerson, treeID, func(tx Transaction) error {
		view := tx.Snapshot()
		target, ok := view.FindPerson(personID)
		if !ok || target.FamilyTreeID != treeID {
			return notFound("person %s not found in family tree %s", personID, treeID)
		}
		for _, p := range view.ListPersons(treeID) {
			if p.ID == personID || !p.References(personID) {
				continue
			}
			if _, err := tx.UpdatePerson(p.ID, func(q *Person) error {
				q.RemoveReferencesTo(personID)
				return nil
			}); err != nil {
				return err
			}
		}
		removed := 0
		for _, rel := range view.RelationshipsForPerson(personID) {
			if err := tx.DeleteRelationship(rel.ID); err != nil {
				return err
			}
			removed++
		}
		if err := tx.DeletePerson(personID); err != nil {
			return err
		}
		_, err := tx.AdjustTreeStatistics(treeID, -1, -removed)
		return err
	})
}
