// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statement

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lib/pq"

	"github.com/ava-labs/abistore/abi"
	"github.com/ava-labs/abistore/codec"
)

const (
	sqlNull  = "NULL"
	sqlTrue  = "TRUE"
	sqlFalse = "FALSE"
)

// literal renders [v] as the SQL literal stored in a column of kind [k].
func literal(k abi.Kind, v codec.Value) (string, error) {
	switch k {
	case abi.KindBool:
		if b, ok := v.(codec.Bool); ok {
			if b {
				return sqlTrue, nil
			}
			return sqlFalse, nil
		}
	case abi.KindU8:
		if n, ok := v.(codec.U8); ok {
			return strconv.FormatUint(uint64(n), 10), nil
		}
	case abi.KindU16:
		if n, ok := v.(codec.U16); ok {
			return strconv.FormatUint(uint64(n), 10), nil
		}
	case abi.KindU32:
		if n, ok := v.(codec.U32); ok {
			return strconv.FormatUint(uint64(n), 10), nil
		}
	case abi.KindU64:
		if n, ok := v.(codec.U64); ok {
			return strconv.FormatUint(uint64(n), 10), nil
		}
	case abi.KindU128:
		if n, ok := v.(codec.U128); ok {
			return pq.QuoteLiteral(n.Hex()), nil
		}
	case abi.KindU256:
		if n, ok := v.(codec.U256); ok {
			return pq.QuoteLiteral(n.Hex()), nil
		}
	case abi.KindB256:
		if h, ok := v.(codec.B256); ok {
			return pq.QuoteLiteral(h.Hex()), nil
		}
	case abi.KindStr:
		if s, ok := v.(codec.Str); ok {
			// TEXT columns hold valid UTF-8 without NUL bytes.
			if !utf8.ValidString(string(s)) || strings.IndexByte(string(s), 0) >= 0 {
				return "", fmt.Errorf("%w: %q is not storable text", codec.ErrSchemaMismatch, string(s))
			}
			return quoteText(string(s)), nil
		}
	default:
		return "", fmt.Errorf("%w: no literal for %s", abi.ErrUnimplementedType, k)
	}
	return "", fmt.Errorf("%w: %T stored as %s", codec.ErrSchemaMismatch, v, k)
}

// quoteText quotes [s] for a TEXT column. pq prefixes escaped literals with
// a space, which is trimmed.
func quoteText(s string) string {
	return strings.TrimPrefix(pq.QuoteLiteral(s), " ")
}

// byteaLiteral renders [b] in the hex bytea input format.
func byteaLiteral(b []byte) string {
	return quoteText(`\x`+hex.EncodeToString(b)) + "::bytea"
}

// equals renders the match condition of [column] against [value].
func equals(column, value string) string {
	if value == sqlNull {
		return pq.QuoteIdentifier(column) + " IS NULL"
	}
	return pq.QuoteIdentifier(column) + " = " + value
}
