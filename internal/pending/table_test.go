package pending

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/figbridge/channelbroker/internal/protocol"
)

func newTestTable(t *testing.T) *Table {
	tbl := New(Options{
		DefaultTimeout: 50 * time.Millisecond,
		ProgressExtend: 200 * time.Millisecond,
		StuckAge:       time.Hour,
		SweepInterval:  time.Hour,
	})
	t.Cleanup(tbl.Stop)
	return tbl
}

func TestRegister_DuplicateIDFails(t *testing.T) {
	tbl := newTestTable(t)
	_, err := tbl.Register("r1", "get_document_info")
	require.NoError(t, err)

	_, err = tbl.Register("r1", "get_document_info")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestResolve_DeliversResult(t *testing.T) {
	tbl := newTestTable(t)
	w, err := tbl.Register("r1", "get_document_info")
	require.NoError(t, err)

	ok := tbl.Resolve("r1", json.RawMessage(`{"name":"Doc"}`))
	assert.True(t, ok)

	outcome := w.Wait()
	require.Nil(t, outcome.Err)
	assert.JSONEq(t, `{"name":"Doc"}`, string(outcome.Result))
}

func TestResolve_UnknownIDIsNoop(t *testing.T) {
	tbl := newTestTable(t)
	assert.False(t, tbl.Resolve("ghost", nil))
}

func TestTimeout_RejectsAfterDeadline(t *testing.T) {
	tbl := newTestTable(t)
	w, err := tbl.Register("r1", "get_document_info")
	require.NoError(t, err)

	outcome := w.Wait()
	require.NotNil(t, outcome.Err)
	assert.Equal(t, protocol.ErrTimeout, outcome.Err.Kind)
	assert.Equal(t, 0, tbl.Len())
}

func TestLateReplyAfterTimeout_IsDropped(t *testing.T) {
	tbl := newTestTable(t)
	w, err := tbl.Register("r1", "get_document_info")
	require.NoError(t, err)

	outcome := w.Wait() // times out
	require.NotNil(t, outcome.Err)

	// A late reply for the same id is a no-op: id already removed.
	assert.False(t, tbl.Resolve("r1", json.RawMessage(`{}`)))
}

func TestExtend_KeepsWaiterAliveAcrossOriginalDeadline(t *testing.T) {
	tbl := New(Options{
		DefaultTimeout: 60 * time.Millisecond,
		ProgressExtend: 300 * time.Millisecond,
		StuckAge:       time.Hour,
		SweepInterval:  time.Hour,
	})
	defer tbl.Stop()

	w, err := tbl.Register("r2", "long_running")
	require.NoError(t, err)

	// progress arrives before the original 60ms deadline
	time.Sleep(20 * time.Millisecond)
	assert.True(t, tbl.Extend("r2"))

	// original deadline (60ms from registration) would have fired by now,
	// but the extension pushed it out to ~300ms from the Extend call.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, tbl.Len())

	assert.True(t, tbl.Resolve("r2", json.RawMessage(`"done"`)))
	outcome := w.Wait()
	assert.Nil(t, outcome.Err)
}

func TestExtend_NeverReducesDeadline(t *testing.T) {
	tbl := New(Options{
		DefaultTimeout: 500 * time.Millisecond,
		ProgressExtend: 10 * time.Millisecond, // shorter than default
		StuckAge:       time.Hour,
		SweepInterval:  time.Hour,
	})
	defer tbl.Stop()

	_, err := tbl.Register("r3", "cmd")
	require.NoError(t, err)

	assert.True(t, tbl.Extend("r3"))
	// Waiter must still be alive well past the (shorter) extension window,
	// because Extend must never shorten an existing deadline.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, tbl.Len())
}

func TestRejectAll_RejectsEveryWaiter(t *testing.T) {
	tbl := newTestTable(t)
	w1, _ := tbl.Register("a", "cmd")
	w2, _ := tbl.Register("b", "cmd")

	tbl.RejectAll(&protocol.ErrorPayload{Kind: protocol.ErrShutdown, Message: "bye"})

	o1 := w1.Wait()
	o2 := w2.Wait()
	assert.Equal(t, protocol.ErrShutdown, o1.Err.Kind)
	assert.Equal(t, protocol.ErrShutdown, o2.Err.Kind)
	assert.Equal(t, 0, tbl.Len())
}

func TestSweep_RejectsStuckEntries(t *testing.T) {
	tbl := New(Options{
		DefaultTimeout: time.Hour, // would never fire its own timer in this test
		ProgressExtend: time.Hour,
		StuckAge:       30 * time.Millisecond,
		SweepInterval:  10 * time.Millisecond,
	})
	defer tbl.Stop()

	w, err := tbl.Register("r1", "cmd")
	require.NoError(t, err)

	outcome := w.Wait()
	require.NotNil(t, outcome.Err)
}
