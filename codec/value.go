// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/abistore/abi"
)

// Value is a decoded value. Its concrete type mirrors the kind of the type it
// was decoded against.
type Value interface {
	Kind() abi.Kind
}

var (
	_ Value = Unit{}
	_ Value = Bool(false)
	_ Value = U8(0)
	_ Value = U16(0)
	_ Value = U32(0)
	_ Value = U64(0)
	_ Value = U128{}
	_ Value = U256{}
	_ Value = B256{}
	_ Value = Str("")
	_ Value = Struct(nil)
	_ Value = Enum{}
	_ Value = Array(nil)
	_ Value = Tuple(nil)
)

type (
	Unit struct{}
	Bool bool
	U8   uint8
	U16  uint16
	U32  uint32
	U64  uint64
	// U128 is a big-endian 128-bit unsigned integer.
	U128 [16]byte
	// U256 is a big-endian 256-bit unsigned integer.
	U256 [32]byte
	// B256 is a 256-bit hash.
	B256 [32]byte
	// Str is the content of a fixed length str[N].
	Str string

	// Struct holds field values in declaration order.
	Struct []Value
	// Array holds every element of a fixed length array.
	Array []Value
	// Tuple holds tuple elements in order.
	Tuple []Value
)

// Enum is a selected variant and its payload. Options are enums whose
// variant 0 is None and variant 1 is Some.
type Enum struct {
	Variant int
	Value   Value
}

func (Unit) Kind() abi.Kind   { return abi.KindUnit }
func (Bool) Kind() abi.Kind   { return abi.KindBool }
func (U8) Kind() abi.Kind     { return abi.KindU8 }
func (U16) Kind() abi.Kind    { return abi.KindU16 }
func (U32) Kind() abi.Kind    { return abi.KindU32 }
func (U64) Kind() abi.Kind    { return abi.KindU64 }
func (U128) Kind() abi.Kind   { return abi.KindU128 }
func (U256) Kind() abi.Kind   { return abi.KindU256 }
func (B256) Kind() abi.Kind   { return abi.KindB256 }
func (Str) Kind() abi.Kind    { return abi.KindStr }
func (Struct) Kind() abi.Kind { return abi.KindStruct }
func (Enum) Kind() abi.Kind   { return abi.KindEnum }
func (Array) Kind() abi.Kind  { return abi.KindArray }
func (Tuple) Kind() abi.Kind  { return abi.KindTuple }

// None is the absent option value.
func None() Enum { return Enum{Variant: 0, Value: Unit{}} }

// Some wraps [v] in a present option value.
func Some(v Value) Enum { return Enum{Variant: 1, Value: v} }

// NewU128 builds a U128 out of its high and low 64-bit halves.
func NewU128(hi, lo uint64) U128 {
	var u U128
	binary.BigEndian.PutUint64(u[:8], hi)
	binary.BigEndian.PutUint64(u[8:], lo)
	return u
}

// NewU256 builds a U256 out of four 64-bit words, most significant first.
func NewU256(a, b, c, d uint64) U256 {
	var u U256
	binary.BigEndian.PutUint64(u[0:8], a)
	binary.BigEndian.PutUint64(u[8:16], b)
	binary.BigEndian.PutUint64(u[16:24], c)
	binary.BigEndian.PutUint64(u[24:32], d)
	return u
}

func (u U128) Hex() string { return hex.EncodeToString(u[:]) }
func (u U256) Hex() string { return hex.EncodeToString(u[:]) }
func (b B256) Hex() string { return hex.EncodeToString(b[:]) }

// Big returns [u] as an arbitrary precision integer.
func (u U256) Big() *big.Int { return new(big.Int).SetBytes(u[:]) }

// ID returns the hash as an avalanchego identifier.
func (b B256) ID() ids.ID { return ids.ID(b) }

// U128FromHex parses the lowercase hex form produced by Hex.
func U128FromHex(s string) (U128, error) {
	var u U128
	err := fromHex(s, u[:])
	return u, err
}

// U256FromHex parses the lowercase hex form produced by Hex.
func U256FromHex(s string) (U256, error) {
	var u U256
	err := fromHex(s, u[:])
	return u, err
}

// B256FromHex parses the lowercase hex form produced by Hex.
func B256FromHex(s string) (B256, error) {
	var b B256
	err := fromHex(s, b[:])
	return b, err
}

func fromHex(s string, out []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(b) != len(out) {
		return fmt.Errorf("%w: expected %d hex bytes, got %d", ErrDecode, len(out), len(b))
	}
	copy(out, b)
	return nil
}
