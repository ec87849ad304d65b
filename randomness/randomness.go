package randomness

import (
	"errors"
	"fmt"

	"github.com/ruteri/tee-randomness-service/intent"
	"github.com/ruteri/tee-randomness-service/interfaces"
	"github.com/ruteri/tee-randomness-service/ledger"
	"github.com/ruteri/tee-randomness-service/registry"
)

var (
	// ErrInvalidRange is returned when the submitted bounds are not a valid
	// range or the value lies outside them. It is evaluated before the
	// signature, so a perfectly signed out-of-range response still fails
	// with this error.
	ErrInvalidRange = errors.New("invalid range")

	// ErrInvalidSignature is returned when the signature does not verify
	// against the enclave's registered key over the canonical intent bytes.
	ErrInvalidSignature = errors.New("invalid enclave signature")
)

// RandomResponse is the payload schema signed by randomness enclaves. Field
// order is the wire order of the canonical intent bytes.
type RandomResponse struct {
	RandomNumber uint64
	Min          uint64
	Max          uint64
}

// RandomNFT is the minted proof that a random number was produced by a
// registered enclave for the recorded range at the recorded time. Records
// are immutable and owned by the submitting account.
type RandomNFT struct {
	id interfaces.ObjectID

	RandomNumber uint64
	Min          uint64
	Max          uint64
	TimestampMS  uint64
}

// ObjectID returns the record's ledger id.
func (n *RandomNFT) ObjectID() interfaces.ObjectID { return n.id }

// SubmitRandom runs the issuance state machine as one atomic ledger call:
// resolve the enclave record, check the range, verify the signature, then
// mint. Exactly one record is created and transferred to caller on success;
// a failure at any step leaves nothing behind. Submitting the same signed
// response twice mints two independent records.
func SubmitRandom(led *ledger.Ledger, enclaveID interfaces.ObjectID, randomNumber, min, max, timestampMS uint64, signature []byte, caller interfaces.AccountAddress) (*RandomNFT, error) {
	var record *RandomNFT
	err := led.Atomic(func(st *ledger.State) error {
		enclave, err := enclaveRecord(st, enclaveID)
		if err != nil {
			return err
		}

		if min >= max || randomNumber < min || randomNumber > max {
			return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidRange, randomNumber, min, max)
		}

		response := RandomResponse{RandomNumber: randomNumber, Min: min, Max: max}
		if !enclave.Verify(intent.ScopeProcessData, timestampMS, response, signature) {
			return ErrInvalidSignature
		}

		record = &RandomNFT{
			id:           st.NewID(),
			RandomNumber: randomNumber,
			Min:          min,
			Max:          max,
			TimestampMS:  timestampMS,
		}
		return st.CreateOwned(record, caller)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Destroy removes a minted record. Only the owning account may destroy it;
// ids that do not refer to a minted record report ErrNotFound.
func Destroy(led *ledger.Ledger, recordID interfaces.ObjectID, caller interfaces.AccountAddress) error {
	return led.Atomic(func(st *ledger.State) error {
		if _, err := ledger.Get[*RandomNFT](st, recordID); err != nil {
			return err
		}
		return st.Destroy(recordID, caller)
	})
}

// GetRecord returns a minted record and its owning account.
func GetRecord(led *ledger.Ledger, recordID interfaces.ObjectID) (*RandomNFT, interfaces.AccountAddress, error) {
	var (
		record *RandomNFT
		owner  interfaces.AccountAddress
	)
	err := led.View(func(st *ledger.State) error {
		var err error
		if record, err = ledger.Get[*RandomNFT](st, recordID); err != nil {
			return err
		}
		owner, err = st.Owner(recordID)
		return err
	})
	if err != nil {
		return nil, interfaces.AccountAddress{}, err
	}
	return record, owner, nil
}

// enclaveRecord resolves the enclave under the submission's schema. A record
// bound to another schema reports registry.ErrSchemaMismatch; any other
// object kind reports ledger.ErrNotFound.
func enclaveRecord(st *ledger.State, id interfaces.ObjectID) (*registry.Enclave[RandomResponse], error) {
	obj, err := st.Object(id)
	if err != nil {
		return nil, err
	}
	if enclave, ok := obj.(*registry.Enclave[RandomResponse]); ok {
		return enclave, nil
	}
	if schema, isEnclave := registry.EnclaveSchema(obj); isEnclave {
		return nil, fmt.Errorf("%w: enclave %s is bound to %s, not %s",
			registry.ErrSchemaMismatch, id, schema, registry.SchemaName[RandomResponse]())
	}
	return nil, fmt.Errorf("%w: object %s is not an enclave record", ledger.ErrNotFound, id)
}
