package ledger

import (
	"sync"
	"testing"

	"github.com/ruteri/tee-randomness-service/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testObject struct {
	id    interfaces.ObjectID
	value string
}

func (o *testObject) ObjectID() interfaces.ObjectID { return o.id }

// TestInstall_OneTimeWitness tests that the witness for a module name can be
// claimed exactly once, by anyone, and never again afterwards.
func TestInstall_OneTimeWitness(t *testing.T) {
	led := New()
	admin := testAccount(0x01)
	other := testAccount(0x02)

	var witness *ModuleCap
	err := led.Atomic(func(st *State) error {
		var err error
		witness, err = st.Install("enclave", admin)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, witness)
	assert.Equal(t, "enclave", witness.Module())

	// Same name again, even from another account, must fail.
	err = led.Atomic(func(st *State) error {
		_, err := st.Install("enclave", other)
		return err
	})
	assert.ErrorIs(t, err, ErrAlreadyInstalled)

	// A different module name is independent.
	err = led.Atomic(func(st *State) error {
		_, err := st.Install("randomness", other)
		return err
	})
	assert.NoError(t, err)

	// The capability is owned by the installer.
	err = led.View(func(st *State) error {
		return st.RequireOwner(witness.ObjectID(), admin)
	})
	assert.NoError(t, err)
	err = led.View(func(st *State) error {
		return st.RequireOwner(witness.ObjectID(), other)
	})
	assert.ErrorIs(t, err, ErrNotOwner)
}

// TestObjectLifecycle tests create, typed get, ownership and destroy.
func TestObjectLifecycle(t *testing.T) {
	led := New()
	owner := testAccount(0xaa)
	stranger := testAccount(0xbb)

	var obj *testObject
	err := led.Atomic(func(st *State) error {
		obj = &testObject{id: st.NewID(), value: "hello"}
		return st.CreateOwned(obj, owner)
	})
	require.NoError(t, err)

	err = led.View(func(st *State) error {
		got, err := Get[*testObject](st, obj.id)
		require.NoError(t, err)
		assert.Equal(t, "hello", got.value)

		holder, err := st.Owner(obj.id)
		require.NoError(t, err)
		assert.True(t, holder.Equal(owner))
		return nil
	})
	require.NoError(t, err)

	// Destroy is owner gated.
	err = led.Atomic(func(st *State) error {
		return st.Destroy(obj.id, stranger)
	})
	assert.ErrorIs(t, err, ErrNotOwner)

	err = led.Atomic(func(st *State) error {
		return st.Destroy(obj.id, owner)
	})
	require.NoError(t, err)

	err = led.View(func(st *State) error {
		_, err := st.Object(obj.id)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestSharedObjects tests that shared objects are readable by anyone and fail
// every owner-gated path.
func TestSharedObjects(t *testing.T) {
	led := New()
	caller := testAccount(0x01)

	var obj *testObject
	err := led.Atomic(func(st *State) error {
		obj = &testObject{id: st.NewID(), value: "shared"}
		return st.CreateShared(obj)
	})
	require.NoError(t, err)

	err = led.View(func(st *State) error {
		_, err := st.Object(obj.id)
		assert.NoError(t, err)

		_, err = st.Owner(obj.id)
		assert.ErrorIs(t, err, ErrNotOwner)
		return nil
	})
	require.NoError(t, err)

	err = led.Atomic(func(st *State) error {
		return st.Destroy(obj.id, caller)
	})
	assert.ErrorIs(t, err, ErrNotOwner)
}

// TestGet_WrongKind tests that fetching an object as the wrong concrete type
// reports ErrNotFound.
func TestGet_WrongKind(t *testing.T) {
	led := New()

	var id interfaces.ObjectID
	err := led.Atomic(func(st *State) error {
		obj := &testObject{id: st.NewID()}
		id = obj.id
		return st.CreateShared(obj)
	})
	require.NoError(t, err)

	err = led.View(func(st *State) error {
		_, err := Get[*ModuleCap](st, id)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestNewID_Unique tests that derived ids never collide within a ledger and
// that duplicate creation is rejected.
func TestNewID_Unique(t *testing.T) {
	led := New()

	seen := make(map[interfaces.ObjectID]bool)
	err := led.Atomic(func(st *State) error {
		for i := 0; i < 1000; i++ {
			id := st.NewID()
			require.False(t, seen[id])
			seen[id] = true
		}
		return nil
	})
	require.NoError(t, err)

	var obj *testObject
	err = led.Atomic(func(st *State) error {
		obj = &testObject{id: st.NewID()}
		require.NoError(t, st.CreateShared(obj))
		return st.CreateShared(obj)
	})
	assert.ErrorIs(t, err, ErrObjectExists)
}

// TestConcurrentCalls tests that concurrent atomic calls each observe a
// consistent state and all writes land.
func TestConcurrentCalls(t *testing.T) {
	led := New()
	owner := testAccount(0x07)

	const workers = 16
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				err := led.Atomic(func(st *State) error {
					return st.CreateOwned(&testObject{id: st.NewID()}, owner)
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	err := led.View(func(st *State) error {
		assert.Len(t, st.objects, workers*perWorker)
		return nil
	})
	require.NoError(t, err)
}

// testAccount builds a deterministic account address from a single byte.
func testAccount(b byte) interfaces.AccountAddress {
	var addr interfaces.AccountAddress
	for i := range addr {
		addr[i] = b
	}
	return addr
}
