package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarshitsr24/Temp-ayur-trace/pkg/event"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/router"
)

func TestEventRouterRelaysBothGenerations(t *testing.T) {
	var got []event.Event
	r := bootstrapEventRouter(func(_ context.Context, e event.Event) error {
		got = append(got, e)
		return nil
	})
	assert.Equal(t, 7, r.Routes())

	for _, name := range []string{"BatchCreatedV2", "BatchCreated", "ProductDispatched"} {
		require.NoError(t, r.ProcessLog(context.Background(), router.LogPayload{
			Event: provenance.Event{
				Kind:        provenance.KindBatchCreated,
				Name:        name,
				BlockNumber: 42,
				TxHash:      "0xabc",
				Payload:     map[string]any{"batchId": "AYR-001"},
			},
			ContractAddress: "0xC0FFEE",
			LogIndex:        3,
			Timestamp:       1700000000,
		}))
	}

	require.Len(t, got, 3)
	assert.Equal(t, "BatchCreatedV2", got[0].TxType)
	assert.Equal(t, uint64(42), got[0].Block)
	assert.Equal(t, uint(3), got[0].Index)
	assert.Equal(t, "0xC0FFEE", got[0].ContractAddress)
	assert.Equal(t, uint64(1700000000), got[0].Timestamp)
	assert.Equal(t, "AYR-001", got[0].Payload["batchId"])
	assert.Equal(t, "ProductDispatched", got[2].TxType)
}

func TestEventRouterIgnoresUnknownEvents(t *testing.T) {
	called := false
	r := bootstrapEventRouter(func(context.Context, event.Event) error {
		called = true
		return nil
	})

	require.NoError(t, r.ProcessLog(context.Background(), router.LogPayload{
		Event: provenance.Event{Name: "OwnershipTransferred"},
	}))
	assert.False(t, called)
}
