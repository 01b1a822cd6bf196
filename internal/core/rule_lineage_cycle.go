package core

import (
	"context"
	"fmt"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

// LineageCycleRule blocks commits that make a person their own ancestor.
func LineageCycleRule() domain.Rule {
	return lineageCycleRule{}
}

type lineageCycleRule struct{}

func (lineageCycleRule) Name() string { return "lineage_cycle" }

func (lineageCycleRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, treeID := range touchedTrees(view, changes) {
		children := make(map[string][]string)
		for _, rel := range view.ListRelationships(treeID) {
			if rel.Type == domain.RelationshipParentChild {
				children[rel.Person1ID] = append(children[rel.Person1ID], rel.Person2ID)
			}
		}
		if id, ok := findCycle(children); ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lineage_cycle",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("person %s is their own ancestor in family tree %s", id, treeID),
				Entity:   domain.EntityPerson,
				EntityID: id,
			})
		}
	}
	return res, nil
}

// findCycle runs an iterative three-colour DFS and returns a person on the
// first cycle found.
func findCycle(children map[string][]string) (string, bool) {
	const (
		white = iota
		grey
		black
	)
	colour := make(map[string]int, len(children))
	type frame struct {
		id   string
		next int
	}
	for root := range children {
		if colour[root] != white {
			continue
		}
		stack := []frame{{id: root}}
		colour[root] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			kids := children[top.id]
			if top.next == len(kids) {
				colour[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			kid := kids[top.next]
			top.next++
			switch colour[kid] {
			case grey:
				return kid, true
			case white:
				colour[kid] = grey
				stack = append(stack, frame{id: kid})
			}
		}
	}
	return "", false
}

// touchedTrees lists the trees named by changes. With no changes every tree
// is checked, which is how offline audits call rules.
func touchedTrees(view domain.RuleView, changes []domain.Change) []string {
	if len(changes) == 0 {
		trees := view.ListFamilyTrees()
		out := make([]string, 0, len(trees))
		for _, t := range trees {
			out = append(out, t.ID)
		}
		return out
	}
	seen := make(map[string]struct{})
	var out []string
	for _, c := range changes {
		if c.TreeID == "" {
			continue
		}
		if _, ok := seen[c.TreeID]; ok {
			continue
		}
		seen[c.TreeID] = struct{}{}
		out = append(out, c.TreeID)
	}
	return out
}
