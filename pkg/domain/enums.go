package domain

// Gender is the declared gender of a person.
type Gender string

// Supported genders.
const (
	GenderMale      Gender = "male"
	GenderFemale    Gender = "female"
	GenderNonBinary Gender = "non_binary"
	GenderOther     Gender = "other"
	GenderUnknown   Gender = "unknown"
)

// Valid reports whether g is a recognised gender.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderNonBinary, GenderOther, GenderUnknown:
		return true
	}
	return false
}

// LegalParentType classifies a non-biological parent.
type LegalParentType string

// Supported legal parent types.
const (
	LegalAdoptive   LegalParentType = "adoptive"
	LegalGuardian   LegalParentType = "guardian"
	LegalFoster     LegalParentType = "foster"
	LegalStepParent LegalParentType = "step_parent"
	LegalOther      LegalParentType = "other"
)

// Valid reports whether t is a recognised legal parent type.
func (t LegalParentType) Valid() bool {
	switch t {
	case LegalAdoptive, LegalGuardian, LegalFoster, LegalStepParent, LegalOther:
		return true
	}
	return false
}

// IdentifierType classifies a person identifier.
type IdentifierType string

// Supported identifier types.
const (
	IdentifierNationalID       IdentifierType = "national_id"
	IdentifierPassport         IdentifierType = "passport"
	IdentifierDriverLicense    IdentifierType = "drivers_license"
	IdentifierBirthCertificate IdentifierType = "birth_certificate"
	IdentifierEmail            IdentifierType = "email"
	IdentifierPhone            IdentifierType = "phone"
	IdentifierOther            IdentifierType = "other"
)

// Valid reports whether t is a recognised identifier type.
func (t IdentifierType) Valid() bool {
	switch t {
	case IdentifierNationalID, IdentifierPassport, IdentifierDriverLicense, IdentifierBirthCertificate,
		IdentifierEmail, IdentifierPhone, IdentifierOther:
		return true
	}
	return false
}

// VerificationStatus tracks whether an identifier has been checked.
type VerificationStatus string

// Supported verification states.
const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
	VerificationRejected   VerificationStatus = "rejected"
)

// Valid reports whether s is a recognised verification state.
func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationUnverified, VerificationPending, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}

// ProfileVisibility controls who may read a person.
type ProfileVisibility string

// Supported profile visibilities.
const (
	ProfilePublic         ProfileVisibility = "public"
	ProfileFamilyTreeOnly ProfileVisibility = "family_tree_only"
	ProfilePrivate        ProfileVisibility = "private"
)

// Valid reports whether v is a recognised profile visibility.
func (v ProfileVisibility) Valid() bool {
	switch v {
	case ProfilePublic, ProfileFamilyTreeOnly, ProfilePrivate:
		return true
	}
	return false
}

// RelationshipType is the kind of edge between two persons.
type RelationshipType string

// Supported relationship types.
const (
	RelationshipSpouse      RelationshipType = "SPOUSE"
	RelationshipParentChild RelationshipType = "PARENT_CHILD"
	RelationshipSibling     RelationshipType = "SIBLING"
)

// Valid reports whether t is a recognised relationship type.
func (t RelationshipType) Valid() bool {
	switch t {
	case RelationshipSpouse, RelationshipParentChild, RelationshipSibling:
		return true
	}
	return false
}

// Directed reports whether endpoint order carries meaning.
func (t RelationshipType) Directed() bool {
	return t == RelationshipParentChild
}

// BiologicalRole selects the biological parent slot on the child.
type BiologicalRole string

// Supported biological roles.
const (
	RoleMother BiologicalRole = "mother"
	RoleFather BiologicalRole = "father"
)

// Valid reports whether r is a recognised biological role.
func (r BiologicalRole) Valid() bool {
	return r == RoleMother || r == RoleFather
}

// TreeVisibility controls anonymous read access to a tree.
type TreeVisibility string

// Supported tree visibilities.
const (
	TreePrivate TreeVisibility = "private"
	TreePublic  TreeVisibility = "public"
)

// Valid reports whether v is a recognised tree visibility.
func (v TreeVisibility) Valid() bool {
	return v == TreePrivate || v == TreePublic
}

// CollaboratorRole is the capability granted to a tree collaborator.
type CollaboratorRole string

// Supported collaborator roles.
const (
	CollaboratorViewer CollaboratorRole = "viewer"
	CollaboratorEditor CollaboratorRole = "editor"
)

// Valid reports whether r is a recognised collaborator role.
func (r CollaboratorRole) Valid() bool {
	return r == CollaboratorViewer || r == CollaboratorEditor
}
