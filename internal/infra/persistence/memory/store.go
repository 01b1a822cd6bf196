// Package memory provides an in-memory implementation of the genealogy
// persistence store used for tests, ephemeral environments and as the
// transactional core of the durable backends.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// FamilyTree aliases domain.FamilyTree for in-memory persistence operations.
	FamilyTree = domain.FamilyTree
	// Person aliases domain.Person.
	Person = domain.Person
	// Relationship aliases domain.Relationship.
	Relationship = domain.Relationship
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	trees         map[string]FamilyTree
	persons       map[string]Person
	relationships map[string]Relationship
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	FamilyTrees   map[string]FamilyTree   `json:"family_trees"`
	Persons       map[string]Person       `json:"persons"`
	Relationships map[string]Relationship `json:"relationships"`
}

// CommitHook receives the post-transaction state before it becomes visible.
// A non-nil error aborts the commit and leaves the committed state untouched.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.idFn = gen
		}
	}
}

// WithCommitHook installs a hook executed inside the commit critical section.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

func newMemoryState() memoryState {
	return memoryState{
		trees:         make(map[string]FamilyTree),
		persons:       make(map[string]Person),
		relationships: make(map[string]Relationship),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		FamilyTrees:   make(map[string]FamilyTree, len(state.trees)),
		Persons:       make(map[string]Person, len(state.persons)),
		Relationships: make(map[string]Relationship, len(state.relationships)),
	}
	for k, v := range state.trees {
		s.FamilyTrees[k] = cloneTree(v)
	}
	for k, v := range state.persons {
		s.Persons[k] = clonePerson(v)
	}
	for k, v := range state.relationships {
		s.Relationships[k] = cloneRelationship(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.FamilyTrees {
		state.trees[k] = cloneTree(v)
	}
	for k, v := range s.Persons {
		state.persons[k] = clonePerson(v)
	}
	for k, v := range s.Relationships {
		state.relationships[k] = cloneRelationship(v)
	}
	return state
}

// normalizeSnapshot repairs records loaded from older or hand-edited
// snapshots: ids follow their map keys and unset enums get their defaults.
func normalizeSnapshot(snapshot Snapshot) Snapshot {
	out := Snapshot{
		FamilyTrees:   make(map[string]FamilyTree, len(snapshot.FamilyTrees)),
		Persons:       make(map[string]Person, len(snapshot.Persons)),
		Relationships: make(map[string]Relationship, len(snapshot.Relationships)),
	}
	for id, tree := range snapshot.FamilyTrees {
		tree.ID = id
		if tree.Visibility == "" {
			tree.Visibility = domain.TreePrivate
		}
		out.FamilyTrees[id] = tree
	}
	for id, person := range snapshot.Persons {
		person.ID = id
		if person.Gender == "" {
			person.Gender = domain.GenderUnknown
		}
		if person.Privacy.ShowProfile == "" {
			person.Privacy.ShowProfile = domain.ProfileFamilyTreeOnly
		}
		out.Persons[id] = person
	}
	for id, rel := range snapshot.Relationships {
		rel.ID = id
		out.Relationships[id] = rel
	}
	return out
}

func (s memoryState) clone() memoryState {
	return memoryStateFromSnapshot(Snapshot{
		FamilyTrees:   s.trees,
		Persons:       s.persons,
		Relationships: s.relationships,
	})
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTree(t FamilyTree) FamilyTree {
	t.Collaborators = slices.Clone(t.Collaborators)
	return t
}

func clonePerson(p Person) Person {
	p.BirthDate = cloneTime(p.BirthDate)
	p.DeathDate = cloneTime(p.DeathDate)
	p.BiologicalMotherID = cloneString(p.BiologicalMotherID)
	p.BiologicalFatherID = cloneString(p.BiologicalFatherID)
	p.Titles = slices.Clone(p.Titles)
	p.Identifiers = slices.Clone(p.Identifiers)
	p.LegalParents = slices.Clone(p.LegalParents)
	p.Spouses = slices.Clone(p.Spouses)
	p.Siblings = slices.Clone(p.Siblings)
	return p
}

func cloneRelationship(r Relationship) Relationship {
	r.StartDate = cloneTime(r.StartDate)
	r.EndDate = cloneTime(r.EndDate)
	return r
}

func sortPersons(out []Person) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
}

func sortRelationships(out []Relationship) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
}

// Store provides an in-memory transactional store for the genealogy domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	idFn   func() string
	hook   CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		idFn:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(normalizeSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListFamilyTrees returns all trees ordered by id.
func (v transactionView) ListFamilyTrees() []FamilyTree {
	out := make([]FamilyTree, 0, len(v.state.trees))
	for _, t := range v.state.trees {
		out = append(out, cloneTree(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindFamilyTree(id string) (FamilyTree, bool) {
	t, ok := v.state.trees[id]
	if !ok {
		return FamilyTree{}, false
	}
	return cloneTree(t), true
}

func (v transactionView) FindPerson(id string) (Person, bool) {
	p, ok := v.state.persons[id]
	if !ok {
		return Person{}, false
	}
	return clonePerson(p), true
}

func (v transactionView) FindRelationship(id string) (Relationship, bool) {
	r, ok := v.state.relationships[id]
	if !ok {
		return Relationship{}, false
	}
	return cloneRelationship(r), true
}

// ListPersons returns the persons of a tree in creation order.
func (v transactionView) ListPersons(treeID string) []Person {
	out := make([]Person, 0)
	for _, p := range v.state.persons {
		if p.FamilyTreeID == treeID {
			out = append(out, clonePerson(p))
		}
	}
	sortPersons(out)
	return out
}

// ListRelationships returns the edges of a tree in creation order.
func (v transactionView) ListRelationships(treeID string) []Relationship {
	out := make([]Relationship, 0)
	for _, r := range v.state.relationships {
		if r.FamilyTreeID == treeID {
			out = append(out, cloneRelationship(r))
		}
	}
	sortRelationships(out)
	return out
}

func (v transactionView) RelationshipsForPerson(personID string) []Relationship {
	out := make([]Relationship, 0)
	for _, r := range v.state.relationships {
		if r.Involves(personID) {
			out = append(out, cloneRelationship(r))
		}
	}
	sortRelationships(out)
	return out
}

func (v transactionView) FindRelationshipBetween(treeID, a, b string, t domain.RelationshipType) (Relationship, bool) {
	for _, r := range v.state.relationships {
		if r.FamilyTreeID == treeID && r.Matches(a, b, t) {
			return cloneRelationship(r), true
		}
	}
	return Relationship{}, false
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the committed state only after fn succeeds, the rules
// engine reports no blocking violation and the commit hook succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if len(tx.changes) == 0 {
		return result, nil
	}
	if s.hook != nil {
		if err := s.hook(context.WithoutCancel(ctx), snapshotFromMemoryState(tx.state)); err != nil {
			return result, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateFamilyTree stores a new tree with zeroed statistics.
func (tx *transaction) CreateFamilyTree(t FamilyTree) (FamilyTree, error) {
	if t.ID == "" {
		t.ID = tx.store.idFn()
	}
	if _, exists := tx.state.trees[t.ID]; exists {
		return FamilyTree{}, fmt.Errorf("family tree %q already exists: %w", t.ID, domain.ErrConflict)
	}
	if t.Visibility == "" {
		t.Visibility = domain.TreePrivate
	}
	t.Statistics = domain.TreeStatistics{}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.trees[t.ID] = cloneTree(t)
	tx.recordChange(Change{Entity: domain.EntityFamilyTree, Action: domain.ActionCreate, TreeID: t.ID, After: cloneTree(t)})
	return cloneTree(t), nil
}

// UpdateFamilyTree mutates tree metadata. Statistics are restored after the
// mutator runs and may only change through AdjustTreeStatistics.
func (tx *transaction) UpdateFamilyTree(id string, mutator func(*FamilyTree) error) (FamilyTree, error) {
	current, ok := tx.state.trees[id]
	if !ok {
		return FamilyTree{}, fmt.Errorf("family tree %q: %w", id, domain.ErrNotFound)
	}
	before := cloneTree(current)
	if err := mutator(&current); err != nil {
		return FamilyTree{}, err
	}
	current.ID = id
	current.OwnerID = before.OwnerID
	current.Statistics = before.Statistics
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.trees[id] = cloneTree(current)
	tx.recordChange(Change{Entity: domain.EntityFamilyTree, Action: domain.ActionUpdate, TreeID: id, Before: before, After: cloneTree(current)})
	return cloneTree(current), nil
}

func applyDelta(v, delta int) int {
	v += delta
	if v < 0 {
		return 0
	}
	return v
}

// AdjustTreeStatistics applies counter deltas, flooring each counter at zero.
func (tx *transaction) AdjustTreeStatistics(treeID string, persons, relationships int) (FamilyTree, error) {
	current, ok := tx.state.trees[treeID]
	if !ok {
		return FamilyTree{}, fmt.Errorf("family tree %q: %w", treeID, domain.ErrNotFound)
	}
	if persons == 0 && relationships == 0 {
		return cloneTree(current), nil
	}
	before := cloneTree(current)
	current.Statistics.TotalPersons = applyDelta(current.Statistics.TotalPersons, persons)
	current.Statistics.TotalRelationships = applyDelta(current.Statistics.TotalRelationships, relationships)
	current.UpdatedAt = tx.now
	tx.state.trees[treeID] = cloneTree(current)
	tx.recordChange(Change{Entity: domain.EntityFamilyTree, Action: domain.ActionUpdate, TreeID: treeID, Before: before, After: cloneTree(current)})
	return cloneTree(current), nil
}

func (tx *transaction) identifierTaken(treeID, identifier, exceptID string) bool {
	if identifier == "" {
		return false
	}
	for _, p := range tx.state.persons {
		if p.FamilyTreeID == treeID && p.Identifier == identifier && p.ID != exceptID {
			return true
		}
	}
	return false
}

// CreatePerson stores a new person inside an existing tree.
func (tx *transaction) CreatePerson(p Person) (Person, error) {
	if _, ok := tx.state.trees[p.FamilyTreeID]; !ok {
		return Person{}, fmt.Errorf("family tree %q: %w", p.FamilyTreeID, domain.ErrNotFound)
	}
	if p.ID == "" {
		p.ID = tx.store.idFn()
	}
	if _, exists := tx.state.persons[p.ID]; exists {
		return Person{}, fmt.Errorf("person %q already exists: %w", p.ID, domain.ErrConflict)
	}
	if tx.identifierTaken(p.FamilyTreeID, p.Identifier, p.ID) {
		return Person{}, fmt.Errorf("identifier %q already used in tree %q: %w", p.Identifier, p.FamilyTreeID, domain.ErrConflict)
	}
	if p.Gender == "" {
		p.Gender = domain.GenderUnknown
	}
	if p.Privacy.ShowProfile == "" {
		p.Privacy.ShowProfile = domain.ProfileFamilyTreeOnly
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.persons[p.ID] = clonePerson(p)
	tx.recordChange(Change{Entity: domain.EntityPerson, Action: domain.ActionCreate, TreeID: p.FamilyTreeID, After: clonePerson(p)})
	return clonePerson(p), nil
}

// UpdatePerson mutates a person using the provided mutator function.
func (tx *transaction) UpdatePerson(id string, mutator func(*Person) error) (Person, error) {
	current, ok := tx.state.persons[id]
	if !ok {
		return Person{}, fmt.Errorf("person %q: %w", id, domain.ErrNotFound)
	}
	before := clonePerson(current)
	if err := mutator(&current); err != nil {
		return Person{}, err
	}
	current.ID = id
	current.FamilyTreeID = before.FamilyTreeID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if tx.identifierTaken(current.FamilyTreeID, current.Identifier, id) {
		return Person{}, fmt.Errorf("identifier %q already used in tree %q: %w", current.Identifier, current.FamilyTreeID, domain.ErrConflict)
	}
	tx.state.persons[id] = clonePerson(current)
	tx.recordChange(Change{Entity: domain.EntityPerson, Action: domain.ActionUpdate, TreeID: current.FamilyTreeID, Before: before, After: clonePerson(current)})
	return clonePerson(current), nil
}

// DeletePerson removes a person. Edges naming the person must be removed first.
func (tx *transaction) DeletePerson(id string) error {
	current, ok := tx.state.persons[id]
	if !ok {
		return fmt.Errorf("person %q: %w", id, domain.ErrNotFound)
	}
	for _, rel := range tx.state.relationships {
		if rel.Involves(id) {
			return fmt.Errorf("person %q still referenced by relationship %q: %w", id, rel.ID, domain.ErrConflict)
		}
	}
	delete(tx.state.persons, id)
	tx.recordChange(Change{Entity: domain.EntityPerson, Action: domain.ActionDelete, TreeID: current.FamilyTreeID, Before: clonePerson(current)})
	return nil
}

// CreateRelationship stores a new edge between two persons of the same tree.
func (tx *transaction) CreateRelationship(r Relationship) (Relationship, error) {
	if _, ok := tx.state.trees[r.FamilyTreeID]; !ok {
		return Relationship{}, fmt.Errorf("family tree %q: %w", r.FamilyTreeID, domain.ErrNotFound)
	}
	for _, pid := range []string{r.Person1ID, r.Person2ID} {
		p, ok := tx.state.persons[pid]
		if !ok || p.FamilyTreeID != r.FamilyTreeID {
			return Relationship{}, fmt.Errorf("person %q in tree %q: %w", pid, r.FamilyTreeID, domain.ErrNotFound)
		}
	}
	if r.ID == "" {
		r.ID = tx.store.idFn()
	}
	if _, exists := tx.state.relationships[r.ID]; exists {
		return Relationship{}, fmt.Errorf("relationship %q already exists: %w", r.ID, domain.ErrConflict)
	}
	for _, existing := range tx.state.relationships {
		if existing.FamilyTreeID == r.FamilyTreeID && existing.Matches(r.Person1ID, r.Person2ID, r.Type) {
			return Relationship{}, fmt.Errorf("%s relationship between %q and %q exists as %q: %w", r.Type, r.Person1ID, r.Person2ID, existing.ID, domain.ErrConflict)
		}
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.relationships[r.ID] = cloneRelationship(r)
	tx.recordChange(Change{Entity: domain.EntityRelationship, Action: domain.ActionCreate, TreeID: r.FamilyTreeID, After: cloneRelationship(r)})
	return cloneRelationship(r), nil
}

// DeleteRelationship removes an edge.
func (tx *transaction) DeleteRelationship(id string) error {
	current, ok := tx.state.relationships[id]
	if !ok {
		return fmt.Errorf("relationship %q: %w", id, domain.ErrNotFound)
	}
	delete(tx.state.relationships, id)
	tx.recordChange(Change{Entity: domain.EntityRelationship, Action: domain.ActionDelete, TreeID: current.FamilyTreeID, Before: cloneRelationship(current)})
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetFamilyTree retrieves a tree by ID from committed state.
func (s *Store) GetFamilyTree(id string) (FamilyTree, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.trees[id]
	if !ok {
		return FamilyTree{}, false
	}
	return cloneTree(t), true
}

// ListFamilyTrees returns all trees from committed state.
func (s *Store) ListFamilyTrees() []FamilyTree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListFamilyTrees()
}

// GetPerson retrieves a person by ID from committed state.
func (s *Store) GetPerson(id string) (Person, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.persons[id]
	if !ok {
		return Person{}, false
	}
	return clonePerson(p), true
}

// ListPersons returns the persons of a tree from committed state.
func (s *Store) ListPersons(treeID string) []Person {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListPersons(treeID)
}

// GetRelationship retrieves an edge by ID from committed state.
func (s *Store) GetRelationship(id string) (Relationship, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.relationships[id]
	if !ok {
		return Relationship{}, false
	}
	return cloneRelationship(r), true
}

// ListRelationships returns the edges of a tree from committed state.
func (s *Store) ListRelationships(treeID string) []Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListRelationships(treeID)
}
