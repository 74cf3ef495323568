package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/uptrace/bunrouter"

	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/events"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

const latestParam = "latest"

type batchResponse struct {
	*provenance.BatchDetails
	ImageURL string `json:"imageUrl"`
}

// blockRange reads the from and to query parameters. A missing from is block
// 0; a missing to, or "latest", is the chain head.
func blockRange(req bunrouter.Request) (uint64, uint64, error) {
	q := req.URL.Query()

	var from uint64
	if v := q.Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, 0, badRequest(fmt.Sprintf("invalid from block %q", v))
		}
		from = n
	}

	to := events.Latest
	if v := q.Get("to"); v != "" && v != latestParam {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, 0, badRequest(fmt.Sprintf("invalid to block %q", v))
		}
		to = n
	}

	if to < from {
		return 0, 0, badRequest("to block is before from block")
	}
	return from, to, nil
}

func (a *api) batchDetails(w http.ResponseWriter, req bunrouter.Request) error {
	id := req.Param("id")

	details, err := a.batches.GetBatchDetails(req.Context(), id)
	if err != nil {
		return err
	}
	if details == nil {
		return notFound(fmt.Sprintf("batch %s not found", id))
	}

	return bunrouter.JSON(w, batchResponse{
		BatchDetails: details,
		ImageURL:     a.batches.ImageURL(req.Context(), details),
	})
}

func (a *api) batchChain(w http.ResponseWriter, req bunrouter.Request) error {
	id := req.Param("id")

	from, to, err := blockRange(req)
	if err != nil {
		return err
	}

	c, found, err := a.chains.GetChainForBatch(req.Context(), id, from, to)
	if err != nil {
		return err
	}

	c.BatchID = id
	if c.Events == nil {
		c.Events = []provenance.Event{}
	}
	if !found {
		return writeJSON(w, http.StatusNotFound, c)
	}
	return bunrouter.JSON(w, c)
}

func (a *api) collection(w http.ResponseWriter, req bunrouter.Request) error {
	rec, err := a.batches.GetCollection(req.Context(), req.Param("id"))
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, rec)
}

func (a *api) inspection(w http.ResponseWriter, req bunrouter.Request) error {
	rec, err := a.batches.GetInspection(req.Context(), req.Param("id"))
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, rec)
}

func (a *api) inventory(w http.ResponseWriter, req bunrouter.Request) error {
	rec, err := a.batches.GetInventory(req.Context(), req.Param("id"))
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, rec)
}

func (a *api) product(w http.ResponseWriter, req bunrouter.Request) error {
	rec, err := a.batches.GetProduct(req.Context(), req.Param("id"))
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, rec)
}

func (a *api) farmerBatches(w http.ResponseWriter, req bunrouter.Request) error {
	from, to, err := blockRange(req)
	if err != nil {
		return err
	}

	summaries, err := a.actors.GetFarmerBatches(req.Context(), from, to)
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, bunrouter.H{"batches": summaries})
}

func (a *api) batchIDs(w http.ResponseWriter, req bunrouter.Request) error {
	ids, err := a.actors.ListBatchIDs(req.Context())
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, bunrouter.H{"batchIds": ids})
}

func (a *api) usernameBatches(w http.ResponseWriter, req bunrouter.Request) error {
	return bunrouter.JSON(w, bunrouter.H{
		"batches": a.actors.GetBatchesForUsername(req.Context(), req.Param("username")),
	})
}

func (a *api) myBatches(w http.ResponseWriter, req bunrouter.Request) error {
	return bunrouter.JSON(w, bunrouter.H{
		"batches": a.actors.GetBatchesForUsername(req.Context(), ""),
	})
}

func (a *api) searchByUsername(w http.ResponseWriter, req bunrouter.Request) error {
	return bunrouter.JSON(w, bunrouter.H{
		"batchIds": a.actors.FindBatchesByFarmerUsername(req.Context(), req.Param("username")),
	})
}

func (a *api) searchByName(w http.ResponseWriter, req bunrouter.Request) error {
	return bunrouter.JSON(w, bunrouter.H{
		"batchIds": a.actors.FindBatchesByFarmerName(req.Context(), req.Param("name")),
	})
}

func (a *api) syncProfile(w http.ResponseWriter, req bunrouter.Request) error {
	receipt, err := a.writer.SyncProfile(req.Context())
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, receipt)
}

// write decodes a JSON body into the input of a lifecycle write and replies
// with the confirmed receipt.
func (a *api) batchMeta(w http.ResponseWriter, req bunrouter.Request) error {
	id := req.Param("id")

	meta, ok, err := a.meta.GetBatchMeta(id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(fmt.Sprintf("no metadata for batch %s", id))
	}
	return bunrouter.JSON(w, meta)
}

func (a *api) mergeBatchMeta(w http.ResponseWriter, req bunrouter.Request) error {
	var meta map[string]any
	if err := json.NewDecoder(req.Body).Decode(&meta); err != nil || meta == nil {
		return badRequest("request body must be a JSON object")
	}

	merged, err := a.meta.MergeBatchMeta(req.Param("id"), meta)
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, merged)
}

func write[T any](a *api, fn func(context.Context, T) (*chain.Receipt, error)) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		var in T
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			return badRequest(fmt.Sprintf("invalid request body: %v", err))
		}

		receipt, err := fn(req.Context(), in)
		if err != nil {
			return err
		}

		a.logg.Debug("lifecycle write confirmed", "path", req.URL.Path, "tx_hash", receipt.TxHash)
		return bunrouter.JSON(w, receipt)
	}
}
