package registry

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/ruteri/tee-randomness-service/cryptoutils"
	"github.com/ruteri/tee-randomness-service/intent"
	"github.com/ruteri/tee-randomness-service/interfaces"
	"github.com/ruteri/tee-randomness-service/ledger"
)

// ModuleName is the witness name claimed by InstallModule. The capability it
// issues gates every configuration mutation.
const ModuleName = "enclave"

// ErrSchemaMismatch is returned when a config or enclave id resolves to a
// record bound to a different payload schema than the caller requested.
var ErrSchemaMismatch = errors.New("payload schema mismatch")

// Config pins the identity an enclave must prove before registration: the
// trust anchor its certificate chain must terminate in and the exact
// measurement registers its platform must report. The type parameter binds
// the config to one payload schema at compile time.
//
// Configs are shared objects: anyone can read them, only the capability
// holder can create or mutate them. A new deployment of the enclave image is
// rolled out by creating a new config, which supersedes the previous one as
// the directory's current config for the schema.
type Config[T any] struct {
	id interfaces.ObjectID

	Label        string
	Anchor       cryptoutils.TrustAnchor
	Measurements interfaces.MeasurementSet
	CreatedAt    time.Time

	schema string
}

// ObjectID returns the config's ledger id.
func (c *Config[T]) ObjectID() interfaces.ObjectID { return c.id }

// Schema returns the payload schema name the config is bound to.
func (c *Config[T]) Schema() string { return c.schema }

func (c *Config[T]) configSchema() string { return c.schema }

func (c *Config[T]) setMeasurements(ms interfaces.MeasurementSet) { c.Measurements = ms }

// snapshot copies the config so callers can read its fields after the ledger
// lock is released. UpdateMeasurements mutates the ledger-resident struct in
// place, so handing out the live pointer would race with concurrent updates.
func (c *Config[T]) snapshot() *Config[T] {
	cp := *c
	return &cp
}

// configObject is satisfied by Config of any schema. It lets schema-agnostic
// operations and mismatch detection work across instantiations.
type configObject interface {
	ledger.Object
	configSchema() string
	setMeasurements(interfaces.MeasurementSet)
}

// Enclave is the registry record of one verified enclave instance: the
// Ed25519 key extracted from a validated attestation document, bound to the
// config it was validated against. Records are immutable and shared;
// re-registration creates a new independent record, never mutates one.
type Enclave[T any] struct {
	id        interfaces.ObjectID
	publicKey ed25519.PublicKey

	ConfigID     interfaces.ObjectID
	Operator     interfaces.AccountAddress
	RegisteredAt time.Time

	// Leaf certificate validity at registration time, informational only.
	NotBefore time.Time
	NotAfter  time.Time

	schema string
}

// ObjectID returns the record's ledger id.
func (e *Enclave[T]) ObjectID() interfaces.ObjectID { return e.id }

// Schema returns the payload schema name the record is bound to.
func (e *Enclave[T]) Schema() string { return e.schema }

func (e *Enclave[T]) enclaveSchema() string { return e.schema }

// PublicKey returns a copy of the verified signing key.
func (e *Enclave[T]) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), e.publicKey...)
}

// Verify checks an Ed25519 signature against the canonical intent bytes
// recomputed from the caller-supplied scope, timestamp and payload. It
// returns false for any mismatch, wrong-length signature or encoding
// failure, and never panics or errors.
func (e *Enclave[T]) Verify(scope intent.Scope, timestampMS uint64, payload T, signature []byte) bool {
	if len(e.publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}

	msg := intent.Message[T]{Scope: scope, TimestampMS: timestampMS, Payload: payload}
	signed, err := msg.Encode()
	if err != nil {
		return false
	}
	return ed25519.Verify(e.publicKey, signed, signature)
}

type enclaveObject interface {
	ledger.Object
	enclaveSchema() string
}

// EnclaveSchema reports whether obj is an enclave record and, if so, the
// payload schema it is bound to. It lets callers holding only a ledger
// object distinguish a schema mismatch from a missing record.
func EnclaveSchema(obj ledger.Object) (string, bool) {
	e, ok := obj.(enclaveObject)
	if !ok {
		return "", false
	}
	return e.enclaveSchema(), true
}

// Directory is the module's shared root object. It tracks the current
// (most recently created) config per payload schema.
type Directory struct {
	id      interfaces.ObjectID
	current map[string]interfaces.ObjectID
}

// ObjectID returns the directory's ledger id.
func (d *Directory) ObjectID() interfaces.ObjectID { return d.id }

// InstallModule claims the module's one-time witness, issues the capability
// to installer and creates the shared directory. It can succeed at most once
// per ledger.
func InstallModule(led *ledger.Ledger, installer interfaces.AccountAddress) (*ledger.ModuleCap, *Directory, error) {
	var (
		witness *ledger.ModuleCap
		dir     *Directory
	)
	err := led.Atomic(func(st *ledger.State) error {
		var err error
		witness, err = st.Install(ModuleName, installer)
		if err != nil {
			return err
		}

		dir = &Directory{id: st.NewID(), current: make(map[string]interfaces.ObjectID)}
		return st.CreateShared(dir)
	})
	if err != nil {
		return nil, nil, err
	}
	return witness, dir, nil
}

// CreateConfig creates a new shared config for schema T and makes it the
// directory's current config for that schema. The caller must own the module
// capability.
func CreateConfig[T any](led *ledger.Ledger, dirID, capID interfaces.ObjectID, caller interfaces.AccountAddress, label string, anchor cryptoutils.TrustAnchor, measurements interfaces.MeasurementSet) (*Config[T], error) {
	var cfg *Config[T]
	err := led.Atomic(func(st *ledger.State) error {
		if err := requireCapability(st, capID, caller); err != nil {
			return err
		}
		dir, err := ledger.Get[*Directory](st, dirID)
		if err != nil {
			return err
		}

		created := &Config[T]{
			id:           st.NewID(),
			Label:        label,
			Anchor:       anchor,
			Measurements: measurements,
			CreatedAt:    time.Now().UTC(),
			schema:       SchemaName[T](),
		}
		if err := st.CreateShared(created); err != nil {
			return err
		}
		dir.current[created.schema] = created.id
		cfg = created.snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpdateMeasurements replaces the expected measurement set of an existing
// config. The caller must own the module capability. Enclave records already
// registered under the config are unaffected.
func UpdateMeasurements(led *ledger.Ledger, capID, configID interfaces.ObjectID, caller interfaces.AccountAddress, measurements interfaces.MeasurementSet) error {
	return led.Atomic(func(st *ledger.State) error {
		if err := requireCapability(st, capID, caller); err != nil {
			return err
		}

		obj, err := st.Object(configID)
		if err != nil {
			return err
		}
		cfg, ok := obj.(configObject)
		if !ok {
			return fmt.Errorf("%w: object %s is not a config", ledger.ErrNotFound, configID)
		}
		cfg.setMeasurements(measurements)
		return nil
	})
}

// Register validates a raw attestation document against the identified
// config and, on success, creates a new shared enclave record holding the
// document's embedded public key. Validation failures propagate unchanged
// and leave no record behind. Every successful call creates a new
// independent record.
func Register[T any](led *ledger.Ledger, validator *cryptoutils.DocumentValidator, configID interfaces.ObjectID, rawDocument []byte, operator interfaces.AccountAddress) (*Enclave[T], error) {
	var record *Enclave[T]
	err := led.Atomic(func(st *ledger.State) error {
		cfg, err := configForSchema[T](st, configID)
		if err != nil {
			return err
		}

		result, err := validator.Validate(rawDocument, cfg.Anchor, cfg.Measurements)
		if err != nil {
			return err
		}

		record = &Enclave[T]{
			id:           st.NewID(),
			publicKey:    result.PublicKey,
			ConfigID:     configID,
			Operator:     operator,
			RegisteredAt: time.Now().UTC(),
			NotBefore:    result.NotBefore,
			NotAfter:     result.NotAfter,
			schema:       SchemaName[T](),
		}
		return st.CreateShared(record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// CurrentConfig returns the directory's current config for schema T. The
// returned config is a snapshot; later measurement updates do not show
// through it.
func CurrentConfig[T any](led *ledger.Ledger, dirID interfaces.ObjectID) (*Config[T], error) {
	var cfg *Config[T]
	err := led.View(func(st *ledger.State) error {
		dir, err := ledger.Get[*Directory](st, dirID)
		if err != nil {
			return err
		}
		id, ok := dir.current[SchemaName[T]()]
		if !ok {
			return fmt.Errorf("%w: no config for schema %s", ledger.ErrNotFound, SchemaName[T]())
		}

		live, err := configForSchema[T](st, id)
		if err != nil {
			return err
		}
		cfg = live.snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetConfig returns the config under id, rejecting records bound to a
// different schema with ErrSchemaMismatch. The returned config is a snapshot;
// later measurement updates do not show through it.
func GetConfig[T any](led *ledger.Ledger, id interfaces.ObjectID) (*Config[T], error) {
	var cfg *Config[T]
	err := led.View(func(st *ledger.State) error {
		live, err := configForSchema[T](st, id)
		if err != nil {
			return err
		}
		cfg = live.snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetEnclave returns the enclave record under id, rejecting records bound to
// a different schema with ErrSchemaMismatch.
func GetEnclave[T any](led *ledger.Ledger, id interfaces.ObjectID) (*Enclave[T], error) {
	var record *Enclave[T]
	err := led.View(func(st *ledger.State) error {
		obj, err := st.Object(id)
		if err != nil {
			return err
		}

		typed, ok := obj.(*Enclave[T])
		if ok {
			record = typed
			return nil
		}
		if other, isEnclave := obj.(enclaveObject); isEnclave {
			return fmt.Errorf("%w: record %s is bound to %s, not %s",
				ErrSchemaMismatch, id, other.enclaveSchema(), SchemaName[T]())
		}
		return fmt.Errorf("%w: object %s is not an enclave record", ledger.ErrNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// SchemaName returns the stable name recorded for payload type T.
func SchemaName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

func configForSchema[T any](st *ledger.State, id interfaces.ObjectID) (*Config[T], error) {
	obj, err := st.Object(id)
	if err != nil {
		return nil, err
	}

	cfg, ok := obj.(*Config[T])
	if ok {
		return cfg, nil
	}
	if other, isConfig := obj.(configObject); isConfig {
		return nil, fmt.Errorf("%w: config %s is bound to %s, not %s",
			ErrSchemaMismatch, id, other.configSchema(), SchemaName[T]())
	}
	return nil, fmt.Errorf("%w: object %s is not a config", ledger.ErrNotFound, id)
}

// requireCapability checks that caller owns the module capability under
// capID. Any failure reports ErrNotOwner through the ledger checks.
func requireCapability(st *ledger.State, capID interfaces.ObjectID, caller interfaces.AccountAddress) error {
	if err := st.RequireOwner(capID, caller); err != nil {
		return err
	}
	witness, err := ledger.Get[*ledger.ModuleCap](st, capID)
	if err != nil {
		return err
	}
	if witness.Module() != ModuleName {
		return fmt.Errorf("%w: capability %s is for module %s", ledger.ErrNotOwner, capID, witness.Module())
	}
	return nil
}
