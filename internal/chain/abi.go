package chain

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
)

const (
	// ABIV2 selects the embedded V2 contract interface.
	ABIV2 = "v2"
	// ABILegacy selects the embedded legacy contract interface.
	ABILegacy = "legacy"
)

//go:embed abi/*.json
var abiFS embed.FS

var embeddedABI = map[string]string{
	ABIV2:     "abi/ayurtrace_v2.json",
	ABILegacy: "abi/ayurtrace_legacy.json",
}

// LoadABI parses the contract interface. source is one of the embedded
// generations (ABIV2, ABILegacy) or a path to an ABI JSON file.
func LoadABI(source string) (abi.ABI, error) {
	var (
		raw []byte
		err error
	)

	if path, ok := embeddedABI[strings.ToLower(source)]; ok {
		raw, err = abiFS.ReadFile(path)
	} else {
		raw, err = os.ReadFile(source)
	}
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read contract abi %s: %w", source, err)
	}

	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse contract abi %s: %w", source, err)
	}

	return parsed, nil
}

// decodeOutputs converts unpacked method outputs into a RawResult.
// A single tuple output becomes a named result keyed by the component names.
func decodeOutputs(method abi.Method, values []any) schema.RawResult {
	if len(method.Outputs) == 1 && method.Outputs[0].Type.T == abi.TupleTy && len(values) == 1 {
		return schema.Named(tupleToMap(method.Outputs[0].Type, values[0]))
	}
	return schema.Positional(values...)
}

func tupleToMap(t abi.Type, v any) map[string]any {
	out := make(map[string]any, len(t.TupleRawNames))
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return out
	}

	for i, name := range t.TupleRawNames {
		if i >= rv.NumField() {
			break
		}
		out[name] = rv.Field(i).Interface()
	}
	return out
}

// decodeLog decodes a contract log against the interface.
// It returns false for logs of unknown events.
func decodeLog(contract abi.ABI, log types.Log) (RawEvent, bool, error) {
	if len(log.Topics) == 0 {
		return RawEvent{}, false, nil
	}

	event, err := contract.EventByID(log.Topics[0])
	if err != nil {
		return RawEvent{}, false, nil
	}

	args := make(map[string]any, len(event.Inputs))
	if len(event.Inputs.NonIndexed()) > 0 {
		if err := event.Inputs.UnpackIntoMap(args, log.Data); err != nil {
			return RawEvent{}, false, fmt.Errorf("failed to unpack %s data: %w", event.Name, err)
		}
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
			return RawEvent{}, false, fmt.Errorf("failed to parse %s topics: %w", event.Name, err)
		}
	}

	return RawEvent{
		Name:        event.Name,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		Args:        args,
	}, true, nil
}
