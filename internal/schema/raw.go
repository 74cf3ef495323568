package schema

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// RawResult is a contract read result in one of the two shapes the schema
// generations return: a positional sequence or a named-field structure.
type RawResult struct {
	positional []any
	named      map[string]any
}

// Positional wraps an ordered sequence of return values.
func Positional(values ...any) RawResult {
	return RawResult{positional: values}
}

// Named wraps a structure keyed by canonical field names.
func Named(fields map[string]any) RawResult {
	return RawResult{named: fields}
}

// IsNamed reports whether the result carries named fields.
func (r RawResult) IsNamed() bool {
	return r.named != nil
}

// Field reads a value by canonical name first, then by fixed positional index.
func (r RawResult) Field(name string, index int) (any, bool) {
	if r.named != nil {
		if v, ok := r.named[name]; ok {
			return v, true
		}
	}
	if index >= 0 && index < len(r.positional) {
		return r.positional[index], true
	}
	return nil, false
}

// Text reads a string field, defaulting to "".
func (r RawResult) Text(name string, index int) string {
	v, ok := r.Field(name, index)
	if !ok {
		return ""
	}
	return toText(v)
}

// Uint reads an unsigned integer field, defaulting to zero.
func (r RawResult) Uint(name string, index int) *big.Int {
	v, ok := r.Field(name, index)
	if !ok {
		return new(big.Int)
	}
	return toUint(v)
}

// Uint8 reads a small enum-like field, defaulting to zero.
func (r RawResult) Uint8(name string, index int) uint8 {
	n := r.Uint(name, index)
	if !n.IsUint64() || n.Uint64() > 255 {
		return 0
	}
	return uint8(n.Uint64())
}

// Hash32 reads a 32-byte content reference as 0x-hex, defaulting to "" for zero or absent values.
func (r RawResult) Hash32(name string, index int) string {
	v, ok := r.Field(name, index)
	if !ok {
		return ""
	}
	var h common.Hash
	switch t := v.(type) {
	case [32]byte:
		h = t
	case common.Hash:
		h = t
	case []byte:
		if len(t) != common.HashLength {
			return ""
		}
		h = common.BytesToHash(t)
	case string:
		return t
	default:
		return ""
	}
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}

func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case common.Address:
		return t.Hex()
	case common.Hash:
		return t.Hex()
	case [32]byte:
		return "0x" + hex.EncodeToString(t[:])
	case *big.Int:
		if t == nil {
			return ""
		}
		return t.String()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toUint(v any) *big.Int {
	switch t := v.(type) {
	case *big.Int:
		if t == nil || t.Sign() < 0 {
			return new(big.Int)
		}
		return new(big.Int).Set(t)
	case uint8:
		return new(big.Int).SetUint64(uint64(t))
	case uint16:
		return new(big.Int).SetUint64(uint64(t))
	case uint32:
		return new(big.Int).SetUint64(uint64(t))
	case uint64:
		return new(big.Int).SetUint64(t)
	case uint:
		return new(big.Int).SetUint64(uint64(t))
	case int:
		if t < 0 {
			return new(big.Int)
		}
		return big.NewInt(int64(t))
	case int64:
		if t < 0 {
			return new(big.Int)
		}
		return big.NewInt(t)
	case json.Number:
		return parseUint(t.String())
	case string:
		return parseUint(t)
	default:
		return new(big.Int)
	}
}

func parseUint(s string) *big.Int {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok || n.Sign() < 0 {
		return new(big.Int)
	}
	return n
}
