// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"fmt"
	"math"

	"github.com/ava-labs/avalanchego/utils/wrappers"

	"github.com/ava-labs/abistore/abi"
)

const (
	wordLen = wrappers.LongLen
	u128Len = 16
	u256Len = 32

	maxEncodedLen = math.MaxInt32
)

// padded rounds [n] up to a multiple of the word length.
func padded(n int) int {
	return (n + wordLen - 1) / wordLen * wordLen
}

// EncodedLen returns the number of bytes a value of shape [p] occupies.
func EncodedLen(p abi.ParamType) (int, error) {
	switch p.Kind {
	case abi.KindUnit, abi.KindBool, abi.KindU8, abi.KindU16, abi.KindU32, abi.KindU64:
		return wordLen, nil
	case abi.KindU128:
		return u128Len, nil
	case abi.KindU256, abi.KindB256:
		return u256Len, nil
	case abi.KindStr:
		return padded(p.Len), nil
	case abi.KindStruct, abi.KindTuple:
		total := 0
		for _, c := range p.Components {
			n, err := EncodedLen(c)
			if err != nil {
				return 0, err
			}
			total += n
			if total > maxEncodedLen {
				return 0, fmt.Errorf("%w: %s is too large", ErrDecode, p)
			}
		}
		return total, nil
	case abi.KindArray:
		n, err := EncodedLen(p.Elem())
		if err != nil {
			return 0, err
		}
		if n > 0 && p.Len > maxEncodedLen/n {
			return 0, fmt.Errorf("%w: %s is too large", ErrDecode, p)
		}
		return n * p.Len, nil
	case abi.KindEnum, abi.KindOption:
		if p.UnitVariantsOnly() {
			return wordLen, nil
		}
		widest, err := widestVariant(p)
		if err != nil {
			return 0, err
		}
		return wordLen + widest, nil
	default:
		return 0, fmt.Errorf("%w: %s", abi.ErrUnimplementedType, p)
	}
}

func widestVariant(p abi.ParamType) (int, error) {
	widest := 0
	for _, c := range p.Components {
		n, err := EncodedLen(c)
		if err != nil {
			return 0, err
		}
		if n > widest {
			widest = n
		}
	}
	return widest, nil
}
