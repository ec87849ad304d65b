package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/ruteri/tee-randomness-service/interfaces"
)

var (
	// ErrNotFound is returned when no object exists under the requested id,
	// or the object under it is of a different kind than the caller expects.
	ErrNotFound = errors.New("object not found")

	// ErrNotOwner is returned when a caller attempts an owner-only operation
	// on an object held by a different account.
	ErrNotOwner = errors.New("caller does not own object")

	// ErrAlreadyInstalled is returned by Install when the module witness was
	// already claimed.
	ErrAlreadyInstalled = errors.New("module already installed")

	// ErrObjectExists guards against id collisions on create. With derived
	// ids it indicates a bug in the caller, not a user error.
	ErrObjectExists = errors.New("object id already in use")
)

// Object is any value storable on the ledger. Implementations may only be
// mutated inside an Atomic call.
type Object interface {
	ObjectID() interfaces.ObjectID
}

// ModuleCap is the one-time witness capability issued by Install. Holding it
// (owning the object) authorizes the module's administrative operations. It
// is created at most once per module name and never duplicated.
type ModuleCap struct {
	id     interfaces.ObjectID
	module string
}

// ObjectID returns the capability's ledger id.
func (c *ModuleCap) ObjectID() interfaces.ObjectID { return c.id }

// Module returns the module name the capability was issued for.
func (c *ModuleCap) Module() string { return c.module }

type entry struct {
	obj   Object
	owner interfaces.AccountAddress
	// shared objects are readable by anyone and owned by no account
	shared bool
}

// State is the mutable ledger state, only reachable inside an Atomic or View
// callback. Methods on State are not synchronized themselves; the enclosing
// call holds the ledger lock.
type State struct {
	objects   map[interfaces.ObjectID]entry
	modules   map[string]interfaces.ObjectID
	idSeed    uuid.UUID
	idCounter uint64
}

// Ledger is an in-memory object store with single-writer call semantics.
// Every mutating protocol operation runs as one Atomic call; reads may run
// concurrently through View. Callbacks perform all validation before their
// first mutation, so a failed call leaves no partial state behind.
type Ledger struct {
	mu    sync.RWMutex
	state State
}

// New creates an empty ledger with a fresh id-derivation seed.
func New() *Ledger {
	return &Ledger{
		state: State{
			objects: make(map[interfaces.ObjectID]entry),
			modules: make(map[string]interfaces.ObjectID),
			idSeed:  uuid.New(),
		},
	}
}

// Atomic executes fn as a single ledger call under the writer lock.
func (l *Ledger) Atomic(fn func(st *State) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(&l.state)
}

// View executes fn under the reader lock. fn must not mutate state.
func (l *Ledger) View(fn func(st *State) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(&l.state)
}

// NewID derives the next object id from the ledger seed and a call counter,
// hashed so ids are unpredictable but reproducible within a run.
func (st *State) NewID() interfaces.ObjectID {
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], st.idCounter)
	st.idCounter++

	digest := crypto.Keccak256(st.idSeed[:], ctr[:])
	id, _ := interfaces.NewObjectIDFromBytes(digest)
	return id
}

// Install claims the one-time witness for a module name and issues the
// capability to owner. A second call for the same name fails with
// ErrAlreadyInstalled regardless of caller.
func (st *State) Install(module string, owner interfaces.AccountAddress) (*ModuleCap, error) {
	if _, taken := st.modules[module]; taken {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInstalled, module)
	}

	witness := &ModuleCap{id: st.NewID(), module: module}
	if err := st.CreateOwned(witness, owner); err != nil {
		return nil, err
	}
	st.modules[module] = witness.id
	return witness, nil
}

// CreateOwned stores a new object held by owner.
func (st *State) CreateOwned(obj Object, owner interfaces.AccountAddress) error {
	id := obj.ObjectID()
	if _, exists := st.objects[id]; exists {
		return fmt.Errorf("%w: %s", ErrObjectExists, id)
	}
	st.objects[id] = entry{obj: obj, owner: owner}
	return nil
}

// CreateShared stores a new object without an owner. Shared objects cannot
// be destroyed through owner-gated paths.
func (st *State) CreateShared(obj Object) error {
	id := obj.ObjectID()
	if _, exists := st.objects[id]; exists {
		return fmt.Errorf("%w: %s", ErrObjectExists, id)
	}
	st.objects[id] = entry{obj: obj, shared: true}
	return nil
}

// Object returns the object stored under id.
func (st *State) Object(id interfaces.ObjectID) (Object, error) {
	e, ok := st.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.obj, nil
}

// RequireOwner verifies that caller holds the object under id.
func (st *State) RequireOwner(id interfaces.ObjectID, caller interfaces.AccountAddress) error {
	e, ok := st.objects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.shared || !e.owner.Equal(caller) {
		return fmt.Errorf("%w: %s", ErrNotOwner, id)
	}
	return nil
}

// Owner reports the holding account of an owned object. Shared objects
// report ErrNotOwner.
func (st *State) Owner(id interfaces.ObjectID) (interfaces.AccountAddress, error) {
	e, ok := st.objects[id]
	if !ok {
		return interfaces.AccountAddress{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.shared {
		return interfaces.AccountAddress{}, fmt.Errorf("%w: %s is shared", ErrNotOwner, id)
	}
	return e.owner, nil
}

// Destroy removes an object after verifying caller ownership.
func (st *State) Destroy(id interfaces.ObjectID, caller interfaces.AccountAddress) error {
	if err := st.RequireOwner(id, caller); err != nil {
		return err
	}
	delete(st.objects, id)
	return nil
}

// Get fetches the object under id as a concrete type. An object of a
// different kind reports ErrNotFound: from the caller's perspective no such
// object of that kind exists.
func Get[T Object](st *State, id interfaces.ObjectID) (T, error) {
	var zero T
	obj, err := st.Object(id)
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: object %s is a %T", ErrNotFound, id, obj)
	}
	return typed, nil
}
