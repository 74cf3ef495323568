package schema

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

type capSet struct {
	methods map[string]bool
	events  map[string]bool
}

func (c capSet) HasMethod(name string) bool { return c.methods[name] }
func (c capSet) HasEvent(name string) bool  { return c.events[name] }

func caps(methods []string, events []string) capSet {
	c := capSet{methods: map[string]bool{}, events: map[string]bool{}}
	for _, m := range methods {
		c.methods[m] = true
	}
	for _, e := range events {
		c.events[e] = true
	}
	return c
}

var photo = common.HexToHash("0x9a3f000000000000000000000000000000000000000000000000000000000001")

func legacyBatch() RawResult {
	return Positional(
		"AYR-001",
		"Ashwagandha",
		big.NewInt(50),
		"2024-03-01",
		"Village A ::FARMER=Ramesh",
		[32]byte(photo),
		uint8(1),
		common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		big.NewInt(1700000000),
	)
}

func v2Batch() RawResult {
	return Named(map[string]any{
		"batchId":        "AYR-001",
		"cropType":       "Ashwagandha",
		"quantity":       big.NewInt(50),
		"harvestDate":    "2024-03-01",
		"farmLocation":   "Village A ::FARMER=Ramesh",
		"photoHash":      [32]byte(photo),
		"status":         uint8(1),
		"owner":          common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		"timestamp":      big.NewInt(1700000000),
		"farmerName":     "Ramesh",
		"farmerUsername": "ramesh01",
	})
}

func TestNegotiatorPrefersV2(t *testing.T) {
	n := NewNegotiator(caps([]string{"getBatchDetailsV2", "getBatchDetails"}, []string{"BatchCreatedV2", "BatchCreated"}))

	name, v2, err := n.Method(OpBatchDetails)
	require.NoError(t, err)
	assert.Equal(t, "getBatchDetailsV2", name)
	assert.True(t, v2)

	name, v2, err = n.EventFor(provenance.KindBatchCreated)
	require.NoError(t, err)
	assert.Equal(t, "BatchCreatedV2", name)
	assert.True(t, v2)
}

func TestNegotiatorFallsBackToLegacy(t *testing.T) {
	n := NewNegotiator(caps([]string{"getBatchDetails"}, []string{"BatchCreated"}))

	name, v2, err := n.Method(OpBatchDetails)
	require.NoError(t, err)
	assert.Equal(t, "getBatchDetails", name)
	assert.False(t, v2)

	name, _, err = n.EventFor(provenance.KindBatchCreated)
	require.NoError(t, err)
	assert.Equal(t, "BatchCreated", name)
}

func TestNegotiatorCapabilityUnavailable(t *testing.T) {
	n := NewNegotiator(caps(nil, nil))

	_, _, err := n.Method(OpBatchDetails)
	assert.ErrorIs(t, err, provenance.ErrCapabilityUnavailable)
	_, _, err = n.EventFor(provenance.KindCollectionAdded)
	assert.ErrorIs(t, err, provenance.ErrCapabilityUnavailable)
	_, _, err = n.EventFor(provenance.Kind("Unheard"))
	assert.ErrorIs(t, err, provenance.ErrCapabilityUnavailable)
	assert.False(t, n.Supports(OpBatchIDsByUsername))
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf("BatchCreatedV2")
	require.True(t, ok)
	assert.Equal(t, provenance.KindBatchCreated, kind)

	kind, ok = KindOf("ProductDispatched")
	require.True(t, ok)
	assert.Equal(t, provenance.KindProductDispatched, kind)

	_, ok = KindOf("")
	assert.False(t, ok)
	_, ok = KindOf("OwnershipTransferred")
	assert.False(t, ok)
}

func TestBatchDetailsLegacyShape(t *testing.T) {
	d := BatchDetails(legacyBatch())

	assert.Equal(t, "AYR-001", d.BatchID)
	assert.Equal(t, "Ashwagandha", d.CropType)
	assert.Equal(t, "50", d.Quantity.String())
	assert.Equal(t, "2024-03-01", d.HarvestDate)
	assert.Equal(t, photo.Hex(), d.PhotoHash)
	assert.Equal(t, uint8(1), d.Status)
	assert.Equal(t, "InTransit", d.StatusText())
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000aa").Hex(), d.Owner)
	assert.Equal(t, "1700000000", d.CreatedAt.String())
	assert.Equal(t, "", d.FarmerName)
	assert.Equal(t, "", d.FarmerUsername)
}

func TestBatchDetailsNamedShape(t *testing.T) {
	d := BatchDetails(v2Batch())

	assert.Equal(t, "AYR-001", d.BatchID)
	assert.Equal(t, "50", d.Quantity.String())
	assert.Equal(t, "Ramesh", d.FarmerName)
	assert.Equal(t, "ramesh01", d.FarmerUsername)
	assert.Equal(t, photo.Hex(), d.PhotoHash)
}

func TestBatchDetailsNamedWithoutV2Fields(t *testing.T) {
	d := BatchDetails(Named(map[string]any{"batchId": "AYR-009"}))

	assert.Equal(t, "AYR-009", d.BatchID)
	assert.Equal(t, "", d.FarmerName)
	assert.Equal(t, "", d.FarmerUsername)
	assert.Equal(t, "0", d.Quantity.String())
	assert.Equal(t, "", d.PhotoHash)
	assert.Equal(t, uint8(0), d.Status)
}

func TestBatchDetailsEmptyMeansMissing(t *testing.T) {
	assert.False(t, (&provenance.BatchDetails{}).Exists())
	d := BatchDetails(Positional("", "", big.NewInt(0)))
	assert.False(t, d.Exists())
	d = BatchDetails(Named(map[string]any{"batchId": ""}))
	assert.False(t, d.Exists())
}

func TestCollectionShapes(t *testing.T) {
	pos := Collection(Positional("AYR-001", "ramesh01", "Ashwagandha", big.NewInt(45), "col-7", big.NewInt(1700000100), uint8(2)))
	named := Collection(Named(map[string]any{
		"farmerBatchId":  "AYR-001",
		"farmerId":       "ramesh01",
		"cropName":       "Ashwagandha",
		"quantity":       big.NewInt(45),
		"collectorId":    "col-7",
		"collectionDate": big.NewInt(1700000100),
		"status":         uint8(2),
	}))
	assert.Equal(t, pos, named)
	assert.Equal(t, "col-7", pos.CollectorID)
	assert.Equal(t, "1700000100", pos.CollectionDate.String())
}

func TestInspectionShapes(t *testing.T) {
	pos := Inspection(Positional("AYR-001", "aud-1", "PASS", "clean", big.NewInt(1700000200)))
	named := Inspection(Named(map[string]any{
		"batchId":     "AYR-001",
		"inspectorId": "aud-1",
		"result":      "PASS",
		"notes":       "clean",
		"date":        big.NewInt(1700000200),
	}))
	assert.Equal(t, pos, named)

	empty := Inspection(Positional())
	assert.Equal(t, "0", empty.Date.String())
}

func TestProductShapes(t *testing.T) {
	pos := Product(Positional("P-1", "AYR-001", "Powder", big.NewInt(40), big.NewInt(5), big.NewInt(1700000300), big.NewInt(1800000000), "man-1"))
	named := Product(Named(map[string]any{
		"productId":         "P-1",
		"sourceBatchId":     "AYR-001",
		"productType":       "Powder",
		"quantityProcessed": big.NewInt(40),
		"wastage":           big.NewInt(5),
		"processingDate":    big.NewInt(1700000300),
		"expiryDate":        big.NewInt(1800000000),
		"manufacturerId":    "man-1",
	}))
	assert.Equal(t, pos, named)
	assert.Equal(t, "AYR-001", pos.SourceBatchID)
}

func TestInventoryShapes(t *testing.T) {
	pos := Inventory(Positional("AYR-001", "Ashwagandha", big.NewInt(30), "WH-2"))
	named := Inventory(Named(map[string]any{
		"batchId":         "AYR-001",
		"herbType":        "Ashwagandha",
		"quantity":        big.NewInt(30),
		"storageLocation": "WH-2",
	}))
	assert.Equal(t, pos, named)
}

func TestStringsShapes(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, Strings(Positional([]string{"A", "", "B"})))
	assert.Equal(t, []string{"A"}, Strings(Named(map[string]any{"ids": []any{"A"}})))
	assert.Nil(t, Strings(Positional()))
	assert.Nil(t, Strings(Positional(42)))
}

func TestAddressShapes(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	assert.Equal(t, addr, Address(Positional(addr)))
	assert.Equal(t, addr, Address(Named(map[string]any{"account": addr.Hex()})))
	assert.Equal(t, common.Address{}, Address(Positional()))
	assert.Equal(t, common.Address{}, Address(Positional("not-an-address")))
}

func TestParseFarmLocation(t *testing.T) {
	loc := ParseFarmLocation("Village A ::FARMER=Ramesh ::ipfs=QmHash")
	assert.Equal(t, "Village A", loc.Base)
	assert.Equal(t, "Ramesh", loc.Farmer)
	assert.Equal(t, "QmHash", loc.IPFS)

	loc = ParseFarmLocation("Plain Village")
	assert.Equal(t, FarmLocation{Base: "Plain Village"}, loc)

	assert.Equal(t, FarmLocation{}, ParseFarmLocation(""))
}

func TestUintCoercionProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every unsigned encoding normalizes to the same integer", prop.ForAll(
		func(v uint64) bool {
			want := new(big.Int).SetUint64(v)
			for _, raw := range []any{v, new(big.Int).SetUint64(v), want.String(), json.Number(want.String()), "0x" + want.Text(16)} {
				got := Positional(raw).Uint("", 0)
				if got.Cmp(want) != 0 {
					return false
				}
			}
			return true
		},
		gen.UInt64(),
	))

	properties.Property("negative and malformed values default to zero", prop.ForAll(
		func(v int64) bool {
			if v >= 0 {
				v = -v - 1
			}
			return Positional(v).Uint("", 0).Sign() == 0 &&
				Positional(big.NewInt(v)).Uint("", 0).Sign() == 0
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}
