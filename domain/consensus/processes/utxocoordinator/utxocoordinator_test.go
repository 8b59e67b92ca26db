package utxocoordinator

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/datastructures/utxostatestore"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/testutils"
	"github.com/timecoin/timed/domain/consensus/utils/transactionhelper"
	"github.com/timecoin/timed/domain/dagconfig"
	"github.com/timecoin/timed/infrastructure/db/database"
	"github.com/timecoin/timed/infrastructure/metrics"
)

type testContext struct {
	coordinator *utxoCoordinator
	utxoStore   model.UTXOStore
	clock       *testutils.ManualClock
	genesis     *externalapi.DomainTransaction
	genesisID   externalapi.DomainTransactionID
}

func newTestContext(t *testing.T, db database.Database) *testContext {
	params := dagconfig.SimnetParams
	utxoStore, err := utxostatestore.New(db, 100)
	if err != nil {
		t.Fatalf("utxostatestore.New: %+v", err)
	}
	m, err := metrics.New()
	if err != nil {
		t.Fatalf("metrics.New: %+v", err)
	}
	clock := testutils.NewManualClock(time.Unix(1_700_000_000, 0))
	coordinator, err := New(&params, utxoStore, clock, m)
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	genesis := params.GenesisTransaction()
	err = coordinator.AddGenesisOutputs(genesis)
	if err != nil {
		t.Fatalf("AddGenesisOutputs: %+v", err)
	}
	return &testContext{
		coordinator: coordinator.(*utxoCoordinator),
		utxoStore:   utxoStore,
		clock:       clock,
		genesis:     genesis,
		genesisID:   consensushashing.TransactionID(genesis),
	}
}

func (tc *testContext) outpoint(index uint32) externalapi.DomainOutpoint {
	return externalapi.DomainOutpoint{TransactionID: tc.genesisID, Index: index}
}

func (tc *testContext) spend(payload string, indexes ...uint32) *externalapi.DomainTransaction {
	outpoints := make([]externalapi.DomainOutpoint, len(indexes))
	for i, index := range indexes {
		outpoints[i] = tc.outpoint(index)
	}
	return transactionhelper.NewSpendTransaction(outpoints, dagconfig.UnitsPerTime, []byte{0x51}, []byte(payload))
}

func (tc *testContext) expectStatus(t *testing.T, outpoint externalapi.DomainOutpoint,
	status externalapi.UTXOStatus, spender externalapi.DomainTransactionID) {

	t.Helper()
	state, err := tc.coordinator.Query(outpoint)
	if err != nil {
		t.Fatalf("Query(%s): %+v", outpoint, err)
	}
	if state.Status != status {
		t.Fatalf("output %s is %s, expected %s", outpoint, state.Status, status)
	}
	if status != externalapi.UTXOStatusUnspent && state.SpenderID != spender {
		t.Fatalf("output %s is held by %s, expected %s", outpoint, state.SpenderID, spender)
	}
}

func TestReserveConflict(t *testing.T) {
	tc := newTestContext(t, testutils.OpenTestDatabase(t))
	x := externalapi.DomainTransactionID{0xaa}
	y := externalapi.DomainTransactionID{0xbb}
	u := tc.outpoint(0)

	err := tc.coordinator.Reserve(u, x)
	if err != nil {
		t.Fatalf("Reserve: %+v", err)
	}
	err = tc.coordinator.Reserve(u, x)
	if err != nil {
		t.Fatalf("Reserve is not idempotent: %+v", err)
	}

	err = tc.coordinator.Reserve(u, y)
	if !errors.Is(err, ruleerrors.ErrAlreadyReserved) {
		t.Fatalf("expected ErrAlreadyReserved, got %+v", err)
	}
	if !ruleerrors.IsClass(err, ruleerrors.ClassConflict) {
		t.Fatalf("expected a Conflict, got %+v", err)
	}
	tc.expectStatus(t, u, externalapi.UTXOStatusReserved, x)

	_, err = tc.coordinator.Query(externalapi.DomainOutpoint{Index: 1})
	if !errors.Is(err, ruleerrors.ErrMissingOutput) {
		t.Fatalf("expected ErrMissingOutput, got %+v", err)
	}
	err = tc.coordinator.Reserve(externalapi.DomainOutpoint{Index: 1}, x)
	if !errors.Is(err, ruleerrors.ErrMissingOutput) {
		t.Fatalf("expected ErrMissingOutput, got %+v", err)
	}
}

func TestFinalizeRejectsContenders(t *testing.T) {
	tc := newTestContext(t, testutils.OpenTestDatabase(t))
	x := externalapi.DomainTransactionID{0xaa}
	y := externalapi.DomainTransactionID{0xbb}
	z := externalapi.DomainTransactionID{0xcc}
	u := tc.outpoint(0)

	if err := tc.coordinator.Reserve(u, x); err != nil {
		t.Fatalf("Reserve: %+v", err)
	}
	_ = tc.coordinator.Reserve(u, y)
	_ = tc.coordinator.Reserve(u, z)

	// A transaction finalized through a proof may win even though
	// another transaction holds the local reservation.
	rejected, err := tc.coordinator.Finalize(u, y)
	if err != nil {
		t.Fatalf("Finalize: %+v", err)
	}
	if len(rejected) != 2 || rejected[0] != x || rejected[1] != z {
		t.Fatalf("expected %s and %s to be rejected, got %v", x, z, rejected)
	}
	tc.expectStatus(t, u, externalapi.UTXOStatusFinal, y)

	rejected, err = tc.coordinator.Finalize(u, y)
	if err != nil || len(rejected) != 0 {
		t.Fatalf("Finalize is not idempotent: %v, %+v", rejected, err)
	}
	_, err = tc.coordinator.Finalize(u, x)
	if !errors.Is(err, ruleerrors.ErrAlreadySpent) {
		t.Fatalf("expected ErrAlreadySpent, got %+v", err)
	}
	err = tc.coordinator.Reserve(u, z)
	if !errors.Is(err, ruleerrors.ErrAlreadySpent) {
		t.Fatalf("expected ErrAlreadySpent, got %+v", err)
	}
}

func TestReleaseAndArchive(t *testing.T) {
	tc := newTestContext(t, testutils.OpenTestDatabase(t))
	x := externalapi.DomainTransactionID{0xaa}
	y := externalapi.DomainTransactionID{0xbb}
	u := tc.outpoint(0)

	if err := tc.coordinator.Reserve(u, x); err != nil {
		t.Fatalf("Reserve: %+v", err)
	}
	if err := tc.coordinator.Release(u, y); err != nil {
		t.Fatalf("Release by a non-holder: %+v", err)
	}
	tc.expectStatus(t, u, externalapi.UTXOStatusReserved, x)
	if err := tc.coordinator.Release(u, x); err != nil {
		t.Fatalf("Release: %+v", err)
	}
	tc.expectStatus(t, u, externalapi.UTXOStatusUnspent, externalapi.DomainTransactionID{})

	err := tc.coordinator.Archive(u, x, 1)
	if !errors.Is(err, ruleerrors.ErrNotFinal) {
		t.Fatalf("expected ErrNotFinal, got %+v", err)
	}
	if err := tc.coordinator.Reserve(u, y); err != nil {
		t.Fatalf("Reserve: %+v", err)
	}
	if _, err := tc.coordinator.Finalize(u, y); err != nil {
		t.Fatalf("Finalize: %+v", err)
	}
	err = tc.coordinator.Archive(u, x, 1)
	if !errors.Is(err, ruleerrors.ErrNotFinal) {
		t.Fatalf("expected ErrNotFinal for another transaction, got %+v", err)
	}
	if err := tc.coordinator.Archive(u, y, 3); err != nil {
		t.Fatalf("Archive: %+v", err)
	}
	if err := tc.coordinator.Archive(u, y, 3); err != nil {
		t.Fatalf("Archive is not idempotent: %+v", err)
	}
	state, err := tc.coordinator.Query(u)
	if err != nil {
		t.Fatalf("Query: %+v", err)
	}
	if state.Status != externalapi.UTXOStatusArchived || state.ArchivedAt != 3 {
		t.Fatalf("unexpected state %s at %d", state, state.ArchivedAt)
	}
}

func TestFinalizeAndArchiveTransaction(t *testing.T) {
	tc := newTestContext(t, testutils.OpenTestDatabase(t))
	tx := tc.spend("a", 0, 1)
	txID := consensushashing.TransactionID(tx)
	competitor := tc.spend("b", 1, 2)
	competitorID := consensushashing.TransactionID(competitor)

	for _, outpoint := range competitor.Outpoints() {
		if err := tc.coordinator.Reserve(outpoint, competitorID); err != nil {
			t.Fatalf("Reserve: %+v", err)
		}
	}
	rejected, err := tc.coordinator.FinalizeTransaction(tx)
	if err != nil {
		t.Fatalf("FinalizeTransaction: %+v", err)
	}
	if len(rejected) != 1 || rejected[0] != competitorID {
		t.Fatalf("expected the competitor to be rejected, got %v", rejected)
	}
	tc.expectStatus(t, tc.outpoint(0), externalapi.UTXOStatusFinal, txID)
	tc.expectStatus(t, tc.outpoint(1), externalapi.UTXOStatusFinal, txID)
	// The competitor's other input is left reserved until it is released.
	tc.expectStatus(t, tc.outpoint(2), externalapi.UTXOStatusReserved, competitorID)

	created := externalapi.DomainOutpoint{TransactionID: txID, Index: 0}
	state, err := tc.coordinator.Query(created)
	if err != nil {
		t.Fatalf("Query: %+v", err)
	}
	if state.Status != externalapi.UTXOStatusUnspent || state.Amount != dagconfig.UnitsPerTime {
		t.Fatalf("unexpected created output %s of %d", state, state.Amount)
	}

	// Spending the created output reserves it like any other.
	if err := tc.coordinator.Reserve(created, competitorID); err != nil {
		t.Fatalf("Reserve: %+v", err)
	}
	if _, err := tc.coordinator.FinalizeTransaction(tx); err != nil {
		t.Fatalf("FinalizeTransaction is not idempotent: %+v", err)
	}
	tc.expectStatus(t, created, externalapi.UTXOStatusReserved, competitorID)

	_, err = tc.coordinator.FinalizeTransaction(competitor)
	if !errors.Is(err, ruleerrors.ErrAlreadySpent) {
		t.Fatalf("expected ErrAlreadySpent, got %+v", err)
	}
	tc.expectStatus(t, tc.outpoint(2), externalapi.UTXOStatusReserved, competitorID)

	if err := tc.coordinator.ArchiveTransaction(tx, 5); err != nil {
		t.Fatalf("ArchiveTransaction: %+v", err)
	}
	tc.expectStatus(t, tc.outpoint(0), externalapi.UTXOStatusArchived, txID)
	tc.expectStatus(t, tc.outpoint(1), externalapi.UTXOStatusArchived, txID)
	if err := tc.coordinator.ArchiveTransaction(competitor, 5); !errors.Is(err, ruleerrors.ErrNotFinal) {
		t.Fatalf("expected ErrNotFinal, got %+v", err)
	}
}

func TestSweepExpiredReservations(t *testing.T) {
	path := t.TempDir()
	db := testutils.OpenTestDatabaseAt(t, path)
	tc := newTestContext(t, db)
	x := externalapi.DomainTransactionID{0xaa}
	y := externalapi.DomainTransactionID{0xbb}

	if err := tc.coordinator.Reserve(tc.outpoint(0), x); err != nil {
		t.Fatalf("Reserve: %+v", err)
	}
	tc.clock.Advance(tc.coordinator.params.ReservationTTL / 2)
	if err := tc.coordinator.Reserve(tc.outpoint(1), y); err != nil {
		t.Fatalf("Reserve: %+v", err)
	}
	tc.clock.Advance(tc.coordinator.params.ReservationTTL / 2)

	swept, err := tc.coordinator.sweepExpiredReservations()
	if err != nil {
		t.Fatalf("sweepExpiredReservations: %+v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept reservation, got %d", swept)
	}
	tc.expectStatus(t, tc.outpoint(0), externalapi.UTXOStatusUnspent, externalapi.DomainTransactionID{})
	tc.expectStatus(t, tc.outpoint(1), externalapi.UTXOStatusReserved, y)

	// A restarted coordinator picks the remaining reservation up from
	// storage.
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %+v", err)
	}
	restarted := newTestContext(t, testutils.OpenTestDatabaseAt(t, path))
	restarted.clock.Set(tc.clock.Now().Add(tc.coordinator.params.ReservationTTL))
	if err := restarted.coordinator.Start(); err != nil {
		t.Fatalf("Start: %+v", err)
	}
	defer restarted.coordinator.Stop()
	swept, err = restarted.coordinator.sweepExpiredReservations()
	if err != nil {
		t.Fatalf("sweepExpiredReservations: %+v", err)
	}
	if swept != 1 {
		t.Fatalf("expected the reloaded reservation to be swept, got %d", swept)
	}
}

func TestConcurrentReserve(t *testing.T) {
	tc := newTestContext(t, testutils.OpenTestDatabase(t))
	u := tc.outpoint(3)

	const contenders = 16
	var wg sync.WaitGroup
	successes := make(chan externalapi.DomainTransactionID, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			transactionID := externalapi.DomainTransactionID{byte(i + 1)}
			if tc.coordinator.Reserve(u, transactionID) == nil {
				successes <- transactionID
			}
		}(i)
	}
	wg.Wait()
	close(successes)

	var holders []externalapi.DomainTransactionID
	for transactionID := range successes {
		holders = append(holders, transactionID)
	}
	if len(holders) != 1 {
		t.Fatalf("expected exactly one reservation to succeed, got %d", len(holders))
	}
	rejected, err := tc.coordinator.Finalize(u, holders[0])
	if err != nil {
		t.Fatalf("Finalize: %+v", err)
	}
	if len(rejected) != contenders-1 {
		t.Fatalf("expected %d rejected contenders, got %d", contenders-1, len(rejected))
	}
}
