package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bunrouter"

	"github.com/tarshitsr24/Temp-ayur-trace/internal/actor"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/aggregator"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/batch"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/cache"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain/chaintest"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/events"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/identity"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/lifecycle"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/pool"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

const testSecret = "test-secret"

type memMappings map[string]string

func (m memMappings) GetMapping(photoHash string) (string, bool, error) {
	v, ok := m[photoHash]
	return v, ok, nil
}

func (m memMappings) PutMapping(photoHash, ipfsHash string) error {
	m[photoHash] = ipfsHash
	return nil
}

type memMeta map[string]map[string]any

func (m memMeta) GetBatchMeta(batchID string) (map[string]any, bool, error) {
	v, ok := m[batchID]
	return v, ok, nil
}

func (m memMeta) MergeBatchMeta(batchID string, meta map[string]any) (map[string]any, error) {
	if m[batchID] == nil {
		m[batchID] = map[string]any{}
	}
	for k, v := range meta {
		m[batchID][k] = v
	}
	return m[batchID], nil
}

var photo = crypto.Keccak256Hash([]byte("photo"))

var ayr001 = chaintest.Batch{
	ID:             "AYR-001",
	CropType:       "Ashwagandha",
	Quantity:       50,
	HarvestDate:    "2024-03-01",
	FarmLocation:   "Village A",
	PhotoHash:      photo,
	Timestamp:      1700000000,
	FarmerName:     "Ramesh",
	FarmerUsername: "ramesh01",
}

func scriptLedger(fake *chaintest.Fake) {
	fake.SetLatest(100)
	fake.ScriptBatches(ayr001)
	fake.OnCallKeyed("getCollection", nil, chaintest.Collection("", "", "", 0, "", 0))
	fake.OnCallKeyed("getInspection", nil, chaintest.Inspection("", "", "", "", 0))
	fake.OnCallKeyed("products", map[string]schema.RawResult{
		"P-1": chaintest.Product("P-1", "AYR-001", "Powder", 40, 5, 1700000300, 1800000000, "man-1"),
	}, chaintest.Product("", "", "", 0, 0, 0, 0, ""))
	fake.OnCallKeyed("getBatchIdsByFarmerUsername", map[string]schema.RawResult{
		"ramesh01": schema.Positional([]string{"AYR-001"}),
	}, schema.Positional([]string{}))
	fake.Emit(chaintest.Event{Name: "BatchCreatedV2", Key: "AYR-001", BlockNumber: 10, Args: map[string]any{
		"batchIdIndex": chaintest.KeyHash("AYR-001"),
		"batchId":      "AYR-001",
		"quantity":     big.NewInt(50),
	}})
}

func newRouter(t *testing.T, fake *chaintest.Fake, secret string) *bunrouter.Router {
	t.Helper()

	logg := slog.New(slog.DiscardHandler)
	negotiator := schema.NewNegotiator(fake)
	ids := identity.NewContextProvider(identity.Identity{})
	mappings := memMappings{photo.Hex(): "QmPhoto"}

	p := pool.New(pool.PoolOpts{Logg: logg, WorkerCount: 4})
	t.Cleanup(p.Stop)

	details := cache.NewMapCache[provenance.BatchDetails](time.Minute, 0, nil)
	chains := cache.NewMapCache[provenance.Chain](time.Minute, 0, nil)

	batches := batch.New(batch.ResolverOpts{
		Chain:       fake,
		Negotiator:  negotiator,
		Cache:       details,
		Mappings:    mappings,
		IPFSGateway: "https://ipfs.example",
		Logg:        logg,
	})
	fetcher := events.New(events.FetcherOpts{Chain: fake, Negotiator: negotiator, Logg: logg})

	return New(APIOpts{
		Batches: batches,
		Chains: aggregator.New(aggregator.AggregatorOpts{
			Batches: batches,
			Events:  fetcher,
			Chain:   fake,
			Cache:   chains,
			Pool:    p,
			Logg:    logg,
		}),
		Actors: actor.New(actor.ResolverOpts{
			Chain:      fake,
			Negotiator: negotiator,
			Batches:    batches,
			Events:     fetcher,
			Identity:   ids,
			Pool:       p,
			Logg:       logg,
		}),
		Writer: lifecycle.New(lifecycle.WriterOpts{
			Chain:      fake,
			Negotiator: negotiator,
			Identity:   ids,
			Mappings:   mappings,
			Details:    batches,
			Logg:       logg,
		}),
		Meta: memMeta{},
		Auth: identity.NewAuthenticator(identity.AuthenticatorOpts{Secret: secret, Logg: logg}),
		Logg: logg,
	})
}

func do(t *testing.T, h http.Handler, method, target, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthAndRequestID(t *testing.T) {
	h := newRouter(t, chaintest.NewV2(), "")

	rec, body := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec, _ = do(t, h, http.MethodGet, "/health", "", map[string]string{requestIDHeader: "req-1"})
	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))

	rec, body = do(t, h, http.MethodGet, "/stats", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body)

	rec, _ = do(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBatchDetails(t *testing.T) {
	fake := chaintest.NewV2()
	scriptLedger(fake)
	h := newRouter(t, fake, "")

	rec, body := do(t, h, http.MethodGet, "/batches/AYR-001", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AYR-001", body["batchId"])
	assert.Equal(t, "Ashwagandha", body["cropType"])
	assert.Equal(t, "https://ipfs.example/ipfs/QmPhoto", body["imageUrl"])

	rec, body = do(t, h, http.MethodGet, "/batches/AYR-404", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "AYR-404")
	assert.NotEmpty(t, body["requestId"])
}

func TestBatchChain(t *testing.T) {
	fake := chaintest.NewV2()
	scriptLedger(fake)
	h := newRouter(t, fake, "")

	rec, body := do(t, h, http.MethodGet, "/batches/AYR-001/chain?from=0&to=latest", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AYR-001", body["batchId"])
	evs, ok := body["events"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, evs)
	assert.Equal(t, "BatchCreatedV2", evs[0].(map[string]any)["name"])

	rec, body = do(t, h, http.MethodGet, "/batches/AYR-404/chain", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "AYR-404", body["batchId"])
	assert.Equal(t, []any{}, body["events"])

	rec, _ = do(t, h, http.MethodGet, "/batches/AYR-001/chain?from=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/batches/AYR-001/chain?from=50&to=10", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordReads(t *testing.T) {
	fake := chaintest.NewV2()
	scriptLedger(fake)
	h := newRouter(t, fake, "")

	rec, body := do(t, h, http.MethodGet, "/products/P-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AYR-001", body["sourceBatchId"])

	rec, _ = do(t, h, http.MethodGet, "/batches/AYR-001/collection", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	fake.FailCall("getInspection", errors.New("rpc down"))
	rec, _ = do(t, h, http.MethodGet, "/batches/AYR-001/inspection", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestBatchMeta(t *testing.T) {
	h := newRouter(t, chaintest.NewV2(), "")

	rec, _ := do(t, h, http.MethodGet, "/batches/AYR-001/meta", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := do(t, h, http.MethodPatch, "/batches/AYR-001/meta", `{"grade":"A"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "A", body["grade"])

	rec, body = do(t, h, http.MethodPatch, "/batches/AYR-001/meta", `{"note":"sun dried"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/batches/AYR-001/meta", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"grade": "A", "note": "sun dried"}, body)

	rec, _ = do(t, h, http.MethodPatch, "/batches/AYR-001/meta", `["grade"]`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListings(t *testing.T) {
	fake := chaintest.NewV2()
	scriptLedger(fake)
	h := newRouter(t, fake, "")

	rec, body := do(t, h, http.MethodGet, "/batches/ids", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"AYR-001"}, body["batchIds"])

	rec, body = do(t, h, http.MethodGet, "/farmers/ramesh01/batches", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["batches"], 1)

	rec, body = do(t, h, http.MethodGet, "/me/batches", "", map[string]string{identity.HeaderActorID: "ramesh01"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["batches"], 1)
	assert.Equal(t, "AYR-001", body["batches"].([]any)[0].(map[string]any)["id"])

	rec, body = do(t, h, http.MethodGet, "/me/batches", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["batches"])

	rec, body = do(t, h, http.MethodGet, "/search/username/ramesh01", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"AYR-001"}, body["batchIds"])

	rec, body = do(t, h, http.MethodGet, "/batches?from=0", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["batches"], 1)
}

func TestCreateBatchWrite(t *testing.T) {
	fake := chaintest.NewV2()
	h := newRouter(t, fake, "")

	rec, body := do(t, h, http.MethodPost, "/batches",
		`{"batchId":"AYR-009","cropType":"Tulsi","quantity":12,"photoHash":"`+photo.Hex()+`","ipfsHash":"QmNew"}`,
		map[string]string{identity.HeaderActorID: "ramesh01", identity.HeaderActorName: "Ramesh"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["status"])
	assert.NotEmpty(t, body["txHash"])

	sub := fake.Submitted()
	require.Len(t, sub, 1)
	assert.Equal(t, "createBatchV2", sub[0].Method)
	assert.Equal(t, "Ramesh", sub[0].Args[6])
	assert.Equal(t, [32]byte(common.HexToHash(photo.Hex())), sub[0].Args[5])
}

func TestWriteErrors(t *testing.T) {
	fake := chaintest.NewV2().Drop("recordDispatch")
	h := newRouter(t, fake, "")

	rec, _ := do(t, h, http.MethodPost, "/batches", `{"batchId":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/batches", `{"batchId":"AYR-009"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/dispatches", `{"batchId":"AYR-001","quantity":1,"destination":"Pune"}`, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	fake.FailSubmit(errors.New("insufficient funds"))
	rec, _ = do(t, h, http.MethodPost, "/receptions", `{"batchId":"AYR-001","herbType":"Tulsi","quantity":1,"storageLocation":"WH-1"}`, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/profile", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBearerTokens(t *testing.T) {
	fake := chaintest.NewV2()
	scriptLedger(fake)
	h := newRouter(t, fake, testSecret)

	rec, _ := do(t, h, http.MethodGet, "/me/batches", "", map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := identity.NewAuthenticator(identity.AuthenticatorOpts{Secret: testSecret}).
		Issue(identity.Identity{ActorID: "ramesh01", Role: "farmer"})
	require.NoError(t, err)

	rec, body := do(t, h, http.MethodGet, "/me/batches", "", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["batches"], 1)

	rec, _ = do(t, h, http.MethodPost, "/profile", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "setFarmerProfile", fake.Submitted()[0].Method)
}
