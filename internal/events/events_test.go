package events

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain/chaintest"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

func newFetcher(fake *chaintest.Fake) *Fetcher {
	return New(FetcherOpts{
		Chain:      fake,
		Negotiator: schema.NewNegotiator(fake),
		Logg:       slog.New(slog.DiscardHandler),
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	fake := chaintest.NewV2()
	fake.SetLatest(5000)
	f := newFetcher(fake)

	w, err := f.Resolve(ctx, 10, Latest)
	require.NoError(t, err)
	assert.Equal(t, Window{From: 10, To: 5000}, w)

	w, err = f.Resolve(ctx, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, Window{From: 10, To: 20}, w)

	fake.FailLatest(errors.New("node down"))
	_, err = f.Resolve(ctx, 0, Latest)
	var readErr *provenance.LedgerReadError
	assert.ErrorAs(t, err, &readErr)
}

func TestClamp(t *testing.T) {
	f := newFetcher(chaintest.NewV2())

	w, clamped := f.Clamp(provenance.KindProductCreated, Window{From: 0, To: 5000})
	assert.True(t, clamped)
	assert.Equal(t, Window{From: 4000, To: 5000}, w)

	w, clamped = f.Clamp(provenance.KindProductCreated, Window{From: 4500, To: 5000})
	assert.False(t, clamped)
	assert.Equal(t, Window{From: 4500, To: 5000}, w)

	w, clamped = f.Clamp(provenance.KindProductCreated, Window{From: 0, To: 1000})
	assert.False(t, clamped)
	assert.Equal(t, Window{From: 0, To: 1000}, w)

	w, clamped = f.Clamp(provenance.KindCollectionAdded, Window{From: 0, To: 5000})
	assert.False(t, clamped)
	assert.Equal(t, Window{From: 0, To: 5000}, w)
}

func TestClampCustomWindow(t *testing.T) {
	fake := chaintest.NewV2()
	f := New(FetcherOpts{Chain: fake, Negotiator: schema.NewNegotiator(fake), ProductWindow: 10, Logg: slog.New(slog.DiscardHandler)})

	w, clamped := f.Clamp(provenance.KindProductCreated, Window{From: 0, To: 100})
	assert.True(t, clamped)
	assert.Equal(t, Window{From: 90, To: 100}, w)
}

func TestFetchFiltersByBatchAndWindow(t *testing.T) {
	fake := chaintest.NewV2()
	fake.Emit(
		chaintest.Event{Name: "CollectionAdded", Key: "AYR-001", BlockNumber: 12, Args: map[string]any{
			"farmerBatchId": chaintest.KeyHash("AYR-001"),
			"collectorId":   "col-7",
			"quantity":      big.NewInt(45),
		}},
		chaintest.Event{Name: "CollectionAdded", Key: "AYR-002", BlockNumber: 13},
		chaintest.Event{Name: "CollectionAdded", Key: "AYR-001", BlockNumber: 900},
	)
	f := newFetcher(fake)

	got := f.Fetch(context.Background(), provenance.KindCollectionAdded, "AYR-001", Window{From: 0, To: 100})
	require.Len(t, got, 1)
	assert.Equal(t, provenance.KindCollectionAdded, got[0].Kind)
	assert.Equal(t, uint64(12), got[0].BlockNumber)
	assert.NotEmpty(t, got[0].TxHash)
	assert.Equal(t, "AYR-001", got[0].Payload["farmerBatchId"])
	assert.Equal(t, "col-7", got[0].Payload["collectorId"])
}

func TestFetchProductCreatedIgnoresBatch(t *testing.T) {
	fake := chaintest.NewV2()
	fake.Emit(
		chaintest.Event{Name: "ProductCreated", BlockNumber: 20, Args: map[string]any{"productId": "P-1"}},
		chaintest.Event{Name: "ProductCreated", BlockNumber: 21, Args: map[string]any{"productId": "P-2"}},
	)
	f := newFetcher(fake)

	got := f.Fetch(context.Background(), provenance.KindProductCreated, "AYR-001", Window{From: 0, To: 100})
	assert.Len(t, got, 2)
}

func TestFetchPrefersV2CreationEvent(t *testing.T) {
	fake := chaintest.NewV2()
	fake.Emit(
		chaintest.Event{Name: "BatchCreated", Key: "AYR-001", BlockNumber: 10},
		chaintest.Event{Name: "BatchCreatedV2", Key: "AYR-001", BlockNumber: 10, Args: map[string]any{"batchId": "AYR-001"}},
	)
	f := newFetcher(fake)

	got := f.Fetch(context.Background(), provenance.KindBatchCreated, "AYR-001", Window{From: 0, To: 100})
	require.Len(t, got, 1)
	assert.Equal(t, "BatchCreatedV2", got[0].Name)
	assert.Equal(t, provenance.KindBatchCreated, got[0].Kind)

	legacy, err := f.FetchNamed(context.Background(), "BatchCreated", "AYR-001", Window{From: 0, To: 100})
	require.NoError(t, err)
	require.Len(t, legacy, 1)
	assert.Equal(t, "BatchCreated", legacy[0].Name)
}

func TestFetchFailureYieldsNoEvents(t *testing.T) {
	fake := chaintest.NewV2()
	fake.Emit(chaintest.Event{Name: "InspectionAdded", Key: "AYR-001", BlockNumber: 5})
	fake.FailFilter("InspectionAdded", errors.New("range too large"))
	f := newFetcher(fake)

	assert.Empty(t, f.Fetch(context.Background(), provenance.KindInspectionAdded, "AYR-001", Window{From: 0, To: 100}))

	_, err := f.FetchStrict(context.Background(), provenance.KindInspectionAdded, "AYR-001", Window{From: 0, To: 100})
	var readErr *provenance.LedgerReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "InspectionAdded", readErr.Op)
}

func TestFetchUnavailableEvent(t *testing.T) {
	fake := chaintest.NewLegacy().Drop("ProductDispatched")
	f := newFetcher(fake)

	_, err := f.FetchStrict(context.Background(), provenance.KindProductDispatched, "AYR-001", Window{From: 0, To: 100})
	assert.ErrorIs(t, err, provenance.ErrCapabilityUnavailable)

	_, err = f.FetchNamed(context.Background(), "Transfer", "", Window{})
	assert.ErrorIs(t, err, provenance.ErrCapabilityUnavailable)
}

func TestConvert(t *testing.T) {
	farmer := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	other := chaintest.KeyHash("AYR-999")

	e := Convert(provenance.KindBatchCreated, chain.RawEvent{
		Name:        "BatchCreated",
		BlockNumber: 10,
		Args: map[string]any{
			"batchIdIndex": chaintest.KeyHash("AYR-001"),
			"farmer":       farmer,
			"quantity":     big.NewInt(50),
			"other":        [32]byte(other),
		},
	}, "AYR-001")

	assert.Equal(t, "AYR-001", e.Payload["batchIdIndex"])
	assert.Equal(t, farmer.Hex(), e.Payload["farmer"])
	assert.Equal(t, other.Hex(), e.Payload["other"])
	assert.Equal(t, big.NewInt(50), e.Payload["quantity"])
	assert.Empty(t, e.TxHash)

	anon := Convert(provenance.KindBatchCreated, chain.RawEvent{
		Name: "BatchCreated",
		Args: map[string]any{"batchIdIndex": chaintest.KeyHash("AYR-001")},
	}, "")
	assert.Equal(t, chaintest.KeyHash("AYR-001").Hex(), anon.Payload["batchIdIndex"])
}
