package core

import "github.com/chifamba/dzinza-sub004/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	FamilyTree         = domain.FamilyTree
	Person             = domain.Person
	Relationship       = domain.Relationship
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityFamilyTree   = domain.EntityFamilyTree
	EntityPerson       = domain.EntityPerson
	EntityRelationship = domain.EntityRelationship
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in integrity rules.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(RelationshipConsistencyRule(), LineageCycleRule())
	return engine
}
