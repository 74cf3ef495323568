package processor

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarshitsr24/Temp-ayur-trace/db"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/cache"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain/chaintest"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/event"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/router"
)

type harness struct {
	fake      *chaintest.Fake
	store     db.DB
	details   cache.Cache[string]
	relayed   []event.Event
	processor *Processor
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := db.NewBoltDB(filepath.Join(t.TempDir(), "blocks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	details := cache.NewMapCache[string](time.Minute, time.Minute, nil)
	t.Cleanup(func() { details.Close() })

	h := &harness{
		fake:    chaintest.NewV2(),
		store:   store,
		details: details,
	}

	r := router.New(func(_ context.Context, e event.Event) error {
		h.relayed = append(h.relayed, e)
		return nil
	})
	relay := func(ctx context.Context, p router.LogPayload, c router.Callback) error {
		return c(ctx, event.Event{
			Block:   p.Event.BlockNumber,
			TxHash:  p.Event.TxHash,
			TxType:  p.Event.Name,
			Kind:    p.Event.Kind,
			Payload: p.Event.Payload,
			Index:   p.LogIndex,
		})
	}
	r.RegisterLogRoute("BatchCreatedV2", relay)
	r.RegisterLogRoute("ProductDispatched", relay)

	h.processor = NewProcessor(ProcessorOpts{
		Chain:           h.fake,
		DB:              store,
		Router:          r,
		Tables:          map[string]cache.Table{"details": details},
		ContractAddress: "0xC0FFEE",
		Logg:            slog.New(slog.DiscardHandler),
	})
	return h
}

func processed(t *testing.T, store db.DB, block uint64) bool {
	t.Helper()
	missing, err := store.GetMissingValuesBitSet(block, block)
	require.NoError(t, err)
	return !missing.Test(uint(block))
}

func TestProcessBlockRelaysAndPurges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.details.Set(ctx, "details_AYR-001", "stale"))
	h.fake.SetTimestamp(7, 1700000000)
	h.fake.Emit(
		chaintest.Event{Name: "BatchCreatedV2", Key: "AYR-001", BlockNumber: 7, Args: map[string]any{"batchId": "AYR-001", "quantity": big.NewInt(50)}},
		chaintest.Event{Name: "ProductDispatched", Key: "AYR-001", BlockNumber: 7, Args: map[string]any{"destination": "Pune"}},
		chaintest.Event{Name: "ProductDispatched", Key: "AYR-002", BlockNumber: 8, Args: map[string]any{"destination": "Delhi"}},
	)

	require.NoError(t, h.processor.ProcessBlock(ctx, 7))

	require.Len(t, h.relayed, 2)
	assert.Equal(t, "BatchCreatedV2", h.relayed[0].TxType)
	assert.Equal(t, provenance.KindBatchCreated, h.relayed[0].Kind)
	assert.Equal(t, "AYR-001", h.relayed[0].Payload["batchId"])
	assert.Equal(t, uint64(7), h.relayed[0].Block)
	assert.NotEmpty(t, h.relayed[0].TxHash)
	assert.Equal(t, provenance.KindProductDispatched, h.relayed[1].Kind)
	assert.NotEqual(t, h.relayed[0].Index, h.relayed[1].Index)

	_, ok, err := h.details.Get(ctx, "details_AYR-001")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, processed(t, h.store, 7))
	assert.False(t, processed(t, h.store, 8))
}

func TestProcessBlockWithoutLogsKeepsCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.details.Set(ctx, "details_AYR-001", "fresh"))
	require.NoError(t, h.processor.ProcessBlock(ctx, 9))

	v, ok, err := h.details.Get(ctx, "details_AYR-001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
	assert.Empty(t, h.relayed)
	assert.Empty(t, h.fake.TimestampRequests())
	assert.True(t, processed(t, h.store, 9))
}

func TestProcessBlockSkipsUnroutedEvents(t *testing.T) {
	h := newHarness(t)

	h.fake.Emit(chaintest.Event{Name: "InspectionAdded", Key: "AYR-001", BlockNumber: 5, Args: map[string]any{"result": "PASS"}})
	require.NoError(t, h.processor.ProcessBlock(context.Background(), 5))

	assert.Empty(t, h.relayed)
	assert.True(t, processed(t, h.store, 5))
}

func TestProcessBlockTimestampFailureStillRelays(t *testing.T) {
	h := newHarness(t)

	h.fake.FailTimestamps(errors.New("rpc down"))
	h.fake.Emit(chaintest.Event{Name: "ProductDispatched", Key: "AYR-001", BlockNumber: 3, Args: map[string]any{"destination": "Pune"}})
	require.NoError(t, h.processor.ProcessBlock(context.Background(), 3))

	require.Len(t, h.relayed, 1)
}

func TestProcessBlockLogFailureLeavesBlockMissing(t *testing.T) {
	h := newHarness(t)

	h.fake.FailFilter("", errors.New("rpc down"))
	assert.Error(t, h.processor.ProcessBlock(context.Background(), 11))
	assert.False(t, processed(t, h.store, 11))
}
