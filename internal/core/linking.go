package core

import (
	"errors"
	"slices"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

// edgeSpec describes an edge to create. meta carries the optional dates and
// notes copied onto the stored relationship.
type edgeSpec struct {
	treeID    string
	person1   string
	person2   string
	relType   domain.RelationshipType
	legalType domain.LegalParentType
	role      domain.BiologicalRole
	meta      Relationship
}

// resolveParentRole picks the biological slot on the child that a
// PARENT_CHILD edge from parent will occupy.
func resolveParentRole(parent Person, legalType domain.LegalParentType, role domain.BiologicalRole) (domain.BiologicalRole, error) {
	if legalType != "" {
		if !legalType.Valid() {
			return "", invalid("unknown legal parent type %q", legalType)
		}
		return "", nil
	}
	if role != "" {
		if !role.Valid() {
			return "", invalid("unknown biological role %q", role)
		}
		return role, nil
	}
	switch parent.Gender {
	case domain.GenderFemale:
		return domain.RoleMother, nil
	case domain.GenderMale:
		return domain.RoleFather, nil
	}
	return "", invalid("biological role (mother or father) is required for parent %s with gender %s", parent.ID, parent.Gender)
}

// isAncestor reports whether ancestorID reaches personID by following
// PARENT_CHILD edges downward.
func isAncestor(view TransactionView, treeID, ancestorID, personID string) bool {
	children := make(map[string][]string)
	for _, rel := range view.ListRelationships(treeID) {
		if rel.Type == domain.RelationshipParentChild {
			children[rel.Person1ID] = append(children[rel.Person1ID], rel.Person2ID)
		}
	}
	seen := map[string]bool{ancestorID: true}
	queue := []string{ancestorID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[cur] {
			if child == personID {
				return true
			}
			if !seen[child] {
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}
	return false
}

// connect validates and creates one edge, then mirrors it onto the endpoint
// persons. Callers account for statistics.
func connect(tx Transaction, spec edgeSpec) (Relationship, error) {
	view := tx.Snapshot()
	if !spec.relType.Valid() {
		return Relationship{}, invalid("unknown relationship type %q", spec.relType)
	}
	if spec.person1 == "" || spec.person2 == "" {
		return Relationship{}, invalid("both person ids are required")
	}
	if spec.person1 == spec.person2 {
		return Relationship{}, invalid("a person cannot be related to themselves")
	}
	p1, ok := view.FindPerson(spec.person1)
	if !ok || p1.FamilyTreeID != spec.treeID {
		return Relationship{}, notFound("person %s not found in family tree %s", spec.person1, spec.treeID)
	}
	p2, ok := view.FindPerson(spec.person2)
	if !ok || p2.FamilyTreeID != spec.treeID {
		return Relationship{}, notFound("person %s not found in family tree %s", spec.person2, spec.treeID)
	}
	if existing, ok := view.FindRelationshipBetween(spec.treeID, spec.person1, spec.person2, spec.relType); ok {
		return Relationship{}, conflict("%s relationship between %s and %s already exists (%s)", spec.relType, spec.person1, spec.person2, existing.ID)
	}

	rel := spec.meta
	rel.ID = ""
	rel.FamilyTreeID = spec.treeID
	rel.Person1ID = spec.person1
	rel.Person2ID = spec.person2
	rel.Type = spec.relType
	rel.LegalType = ""

	var role domain.BiologicalRole
	if spec.relType == domain.RelationshipParentChild {
		if _, reverse := view.FindRelationshipBetween(spec.treeID, spec.person2, spec.person1, domain.RelationshipParentChild); reverse || isAncestor(view, spec.treeID, spec.person2, spec.person1) {
			return Relationship{}, invalid("person %s cannot be a parent of their own ancestor %s", spec.person1, spec.person2)
		}
		var err error
		role, err = resolveParentRole(p1, spec.legalType, spec.role)
		if err != nil {
			return Relationship{}, err
		}
		rel.LegalType = spec.legalType
		switch role {
		case domain.RoleMother:
			if p2.BiologicalMotherID != nil {
				return Relationship{}, conflict("person %s already has a biological mother", p2.ID)
			}
		case domain.RoleFather:
			if p2.BiologicalFatherID != nil {
				return Relationship{}, conflict("person %s already has a biological father", p2.ID)
			}
		}
	} else if spec.legalType != "" || spec.role != "" {
		return Relationship{}, invalid("legal type and biological role apply only to PARENT_CHILD relationships")
	}

	created, err := tx.CreateRelationship(rel)
	if err != nil {
		return Relationship{}, err
	}
	if err := mirror(tx, created, role); err != nil {
		return Relationship{}, err
	}
	return created, nil
}

// mirror writes the pointer fields backing a newly created edge.
func mirror(tx Transaction, rel Relationship, role domain.BiologicalRole) error {
	switch rel.Type {
	case domain.RelationshipParentChild:
		parentID := rel.Person1ID
		_, err := tx.UpdatePerson(rel.Person2ID, func(child *Person) error {
			if rel.LegalType != "" {
				child.LegalParents = append(child.LegalParents, domain.LegalParent{ParentID: parentID, Type: rel.LegalType, RelationshipID: rel.ID})
				return nil
			}
			if role == domain.RoleMother {
				child.BiologicalMotherID = &parentID
			} else {
				child.BiologicalFatherID = &parentID
			}
			return nil
		})
		return err
	case domain.RelationshipSpouse:
		if _, err := tx.UpdatePerson(rel.Person1ID, func(p *Person) error {
			p.Spouses = append(p.Spouses, domain.SpouseLink{SpouseID: rel.Person2ID, RelationshipID: rel.ID})
			return nil
		}); err != nil {
			return err
		}
		_, err := tx.UpdatePerson(rel.Person2ID, func(p *Person) error {
			p.Spouses = append(p.Spouses, domain.SpouseLink{SpouseID: rel.Person1ID, RelationshipID: rel.ID})
			return nil
		})
		return err
	case domain.RelationshipSibling:
		if _, err := tx.UpdatePerson(rel.Person1ID, func(p *Person) error {
			p.Siblings = append(p.Siblings, domain.SiblingLink{SiblingID: rel.Person2ID, RelationshipID: rel.ID})
			return nil
		}); err != nil {
			return err
		}
		_, err := tx.UpdatePerson(rel.Person2ID, func(p *Person) error {
			p.Siblings = append(p.Siblings, domain.SiblingLink{SiblingID: rel.Person1ID, RelationshipID: rel.ID})
			return nil
		})
		return err
	}
	return invalid("unknown relationship type %q", rel.Type)
}

// disconnect deletes an edge and clears the pointers that mirror it.
// Endpoints that no longer exist are skipped.
func disconnect(tx Transaction, rel Relationship) error {
	if err := tx.DeleteRelationship(rel.ID); err != nil {
		return err
	}
	strip := func(personID string, fn func(*Person)) error {
		_, err := tx.UpdatePerson(personID, func(p *Person) error {
			fn(p)
			return nil
		})
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	switch rel.Type {
	case domain.RelationshipParentChild:
		parentID := rel.Person1ID
		return strip(rel.Person2ID, func(child *Person) {
			if rel.LegalType != "" {
				child.LegalParents = slices.DeleteFunc(child.LegalParents, func(lp domain.LegalParent) bool {
					return lp.ParentID == parentID
				})
				return
			}
			if child.BiologicalMotherID != nil && *child.BiologicalMotherID == parentID {
				child.BiologicalMotherID = nil
			}
			if child.BiologicalFatherID != nil && *child.BiologicalFatherID == parentID {
				child.BiologicalFatherID = nil
			}
		})
	case domain.RelationshipSpouse:
		for _, pair := range [][2]string{{rel.Person1ID, rel.Person2ID}, {rel.Person2ID, rel.Person1ID}} {
			other := pair[1]
			if err := strip(pair[0], func(p *Person) {
				p.Spouses = slices.DeleteFunc(p.Spouses, func(l domain.SpouseLink) bool { return l.SpouseID == other })
			}); err != nil {
				return err
			}
		}
	case domain.RelationshipSibling:
		for _, pair := range [][2]string{{rel.Person1ID, rel.Person2ID}, {rel.Person2ID, rel.Person1ID}} {
			other := pair[1]
			if err := strip(pair[0], func(p *Person) {
				p.Siblings = slices.DeleteFunc(p.Siblings, func(l domain.SiblingLink) bool { return l.SiblingID == other })
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
