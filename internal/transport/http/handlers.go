package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chifamba/dzinza-sub004/internal/core"
	"github.com/chifamba/dzinza-sub004/internal/platform/auth"
	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

type collaboratorRequest struct {
	Role domain.CollaboratorRole `json:"role"`
}

func actor(r *http.Request) string { return auth.ActorID(r.Context()) }

func treeID(r *http.Request) string { return chi.URLParam(r, "treeID") }

// --- family trees ---

func (h *Handler) listTrees(w http.ResponseWriter, r *http.Request) {
	trees, err := h.svc.ListFamilyTrees(r.Context(), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"family_trees": trees})
}

func (h *Handler) createTree(w http.ResponseWriter, r *http.Request) {
	var in core.FamilyTreeInput
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	tree, err := h.svc.CreateFamilyTree(r.Context(), actor(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tree)
}

func (h *Handler) getTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.svc.GetFamilyTree(r.Context(), treeID(r), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (h *Handler) treeDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.TreeDocument(r.Context(), treeID(r), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) putCollaborator(w http.ResponseWriter, r *http.Request) {
	var in collaboratorRequest
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	tree, err := h.svc.AddCollaborator(r.Context(), treeID(r), actor(r), chi.URLParam(r, "userID"), in.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (h *Handler) deleteCollaborator(w http.ResponseWriter, r *http.Request) {
	tree, err := h.svc.RemoveCollaborator(r.Context(), treeID(r), actor(r), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// --- persons ---

func (h *Handler) listPersons(w http.ResponseWriter, r *http.Request) {
	persons, err := h.svc.ListPersons(r.Context(), treeID(r), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"persons": persons})
}

func (h *Handler) createPerson(w http.ResponseWriter, r *http.Request) {
	var in core.PersonInput
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	person, err := h.svc.CreatePerson(r.Context(), treeID(r), actor(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, person)
}

func (h *Handler) getPerson(w http.ResponseWriter, r *http.Request) {
	details, err := h.svc.GetPerson(r.Context(), treeID(r), actor(r), chi.URLParam(r, "personID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) updatePerson(w http.ResponseWriter, r *http.Request) {
	var patch core.PersonPatch
	if err := decode(w, r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	details, err := h.svc.UpdatePerson(r.Context(), treeID(r), actor(r), chi.URLParam(r, "personID"), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) deletePerson(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePerson(r.Context(), treeID(r), actor(r), chi.URLParam(r, "personID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- relationships ---

func (h *Handler) listRelationships(w http.ResponseWriter, r *http.Request) {
	h.writeRelationships(w, r, r.URL.Query().Get("person_id"))
}

func (h *Handler) listPersonRelationships(w http.ResponseWriter, r *http.Request) {
	h.writeRelationships(w, r, chi.URLParam(r, "personID"))
}

func (h *Handler) writeRelationships(w http.ResponseWriter, r *http.Request, personID string) {
	rels, err := h.svc.ListRelationships(r.Context(), treeID(r), actor(r), personID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"relationships": rels})
}

func (h *Handler) createRelationship(w http.ResponseWriter, r *http.Request) {
	var in core.RelationshipInput
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	rel, err := h.svc.CreateRelationship(r.Context(), treeID(r), actor(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

func (h *Handler) deleteRelationship(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRelationship(r.Context(), treeID(r), actor(r), chi.URLParam(r, "relationshipID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteRelationshipBetween handles DELETE /relationships?person1_id=&person2_id=&type=.
func (h *Handler) deleteRelationshipBetween(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p1, p2 := q.Get("person1_id"), q.Get("person2_id")
	if p1 == "" || p2 == "" {
		h.writeError(w, r, domain.New(domain.CodeValidation, "person1_id and person2_id query parameters are required"))
		return
	}
	err := h.svc.DeleteRelationshipBetween(r.Context(), treeID(r), actor(r), p1, p2, domain.RelationshipType(q.Get("type")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- exports ---

func (h *Handler) createExport(w http.ResponseWriter, r *http.Request) {
	res, err := h.exports.Export(r.Context(), treeID(r), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	infos, err := h.exports.List(r.Context(), treeID(r), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": infos})
}
