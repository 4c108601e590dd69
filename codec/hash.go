// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"encoding/hex"
	"fmt"
	"math"

	"github.com/ava-labs/avalanchego/utils/hashing"
	"github.com/ava-labs/avalanchego/utils/wrappers"
)

// DigestLen is the number of hex characters Hash returns: 128 bits of the
// SHA-256 digest. Fragment names built from it stay within PostgreSQL's 63
// byte identifier limit once the table name is cut to fit.
const DigestLen = 32

// Hash returns a content address for [v] saved as a [typeName] row. [scope]
// distinguishes otherwise identical values that belong to different owners
// and is empty for free standing rows.
//
// The preimage is built over the value tree itself: every node is tagged
// with its kind and every variable length part is length prefixed, so two
// values collide only if they are structurally equal.
func Hash(typeName, scope string, v Value) (string, error) {
	digest, err := digest(typeName, scope, v)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(digest[:DigestLen/2]), nil
}

// Digest returns the full SHA-256 content digest of [v] in hex.
func Digest(v Value) (string, error) {
	digest, err := digest("", "", v)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(digest[:]), nil
}

func digest(typeName, scope string, v Value) (hashing.Hash256, error) {
	p := wrappers.Packer{MaxSize: math.MaxInt32}
	p.PackStr(typeName)
	p.PackStr(scope)
	if err := packValue(&p, v); err != nil {
		return hashing.Hash256{}, err
	}
	if p.Errored() {
		return hashing.Hash256{}, fmt.Errorf("couldn't hash %s value: %w", typeName, p.Err)
	}
	return hashing.ComputeHash256Array(p.Bytes), nil
}

func packValue(p *wrappers.Packer, v Value) error {
	if v == nil {
		return fmt.Errorf("%w: nil value", ErrSchemaMismatch)
	}
	p.PackByte(byte(v.Kind()))
	switch v := v.(type) {
	case Unit:
	case Bool:
		p.PackBool(bool(v))
	case U8:
		p.PackByte(byte(v))
	case U16:
		p.PackShort(uint16(v))
	case U32:
		p.PackInt(uint32(v))
	case U64:
		p.PackLong(uint64(v))
	case U128:
		p.PackFixedBytes(v[:])
	case U256:
		p.PackFixedBytes(v[:])
	case B256:
		p.PackFixedBytes(v[:])
	case Str:
		p.PackBytes([]byte(v))
	case Struct:
		return packSequence(p, v)
	case Tuple:
		return packSequence(p, v)
	case Array:
		return packSequence(p, v)
	case Enum:
		p.PackInt(uint32(v.Variant))
		return packValue(p, v.Value)
	default:
		return fmt.Errorf("%w: can't hash %T", ErrSchemaMismatch, v)
	}
	return nil
}

func packSequence(p *wrappers.Packer, values []Value) error {
	p.PackInt(uint32(len(values)))
	for _, v := range values {
		if err := packValue(p, v); err != nil {
			return err
		}
	}
	return nil
}
