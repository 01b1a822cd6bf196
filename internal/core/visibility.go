package core

import (
	"context"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

// profileAccess is what a caller may read of a tree's person profiles.
type profileAccess struct {
	view bool
	edit bool
}

// fullAccess sees every profile. It is used for editors and system reads.
var fullAccess = profileAccess{view: true, edit: true}

// accessFor resolves the caller's profile rights on a tree.
func (s *Service) accessFor(ctx context.Context, treeID, actorID string) (profileAccess, error) {
	edit, err := s.policy.CanEdit(ctx, treeID, actorID)
	if err != nil {
		return profileAccess{}, translate(err)
	}
	if edit {
		return fullAccess, nil
	}
	view, err := s.policy.CanView(ctx, treeID, actorID)
	if err != nil {
		return profileAccess{}, translate(err)
	}
	return profileAccess{view: view}, nil
}

// sees applies the profile visibility setting: public profiles are open to
// anyone, tree-only profiles need view rights and private ones edit rights.
func (a profileAccess) sees(p Person) bool {
	switch p.Privacy.ShowProfile {
	case domain.ProfilePublic:
		return true
	case domain.ProfilePrivate:
		return a.edit
	default:
		return a.view
	}
}

// redact drops every pointer on p that names a person the caller may not
// see. Pointers to persons missing from view are left alone.
func (a profileAccess) redact(view TransactionView, p Person) Person {
	if a.edit {
		return p
	}
	for _, id := range p.ReferencedPersonIDs() {
		if q, ok := view.FindPerson(id); ok && !a.sees(q) {
			p.RemoveReferencesTo(id)
		}
	}
	return p
}

// visiblePersons filters all down to the profiles the caller may see and
// strips pointers to the hidden ones from what remains.
func visiblePersons(all []Person, access profileAccess) []Person {
	if access.edit {
		return all
	}
	hidden := make(map[string]struct{})
	for _, p := range all {
		if !access.sees(p) {
			hidden[p.ID] = struct{}{}
		}
	}
	out := make([]Person, 0, len(all)-len(hidden))
	for _, p := range all {
		if _, skip := hidden[p.ID]; skip {
			continue
		}
		for _, id := range p.ReferencedPersonIDs() {
			if _, skip := hidden[id]; skip {
				p.RemoveReferencesTo(id)
			}
		}
		out = append(out, p)
	}
	return out
}

// visibleRelationships keeps the edges whose endpoints are both visible.
func visibleRelationships(view TransactionView, all []Relationship, access profileAccess) []Relationship {
	if access.edit {
		return all
	}
	out := make([]Relationship, 0, len(all))
	for _, rel := range all {
		p1, _ := view.FindPerson(rel.Person1ID)
		p2, _ := view.FindPerson(rel.Person2ID)
		if !access.sees(p1) || !access.sees(p2) {
			continue
		}
		out = append(out, rel)
	}
	return out
}
