// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"fmt"

	"github.com/ava-labs/avalanchego/utils/wrappers"

	"github.com/ava-labs/abistore/abi"
)

// Encode serializes [v] as a value of type [typeID]. It is the inverse of
// Decode.
func Encode(c *abi.Catalog, typeID int, v Value) ([]byte, error) {
	p, err := c.ParamType(typeID)
	if err != nil {
		return nil, err
	}
	return EncodeParam(p, v)
}

// EncodeParam serializes [v] as a value of shape [p].
func EncodeParam(p abi.ParamType, v Value) ([]byte, error) {
	size, err := EncodedLen(p)
	if err != nil {
		return nil, err
	}
	e := encoder{p: &wrappers.Packer{
		MaxSize: size,
		Bytes:   make([]byte, 0, size),
	}}
	if err := e.encode(p, v); err != nil {
		return nil, err
	}
	if e.p.Errored() {
		return nil, fmt.Errorf("couldn't encode %s: %w", p, e.p.Err)
	}
	return e.p.Bytes, nil
}

type encoder struct {
	p *wrappers.Packer
}

func mismatch(p abi.ParamType, v Value) error {
	return fmt.Errorf("%w: %T for %s", ErrSchemaMismatch, v, p)
}

func (e *encoder) encode(p abi.ParamType, v Value) error {
	switch p.Kind {
	case abi.KindUnit:
		if _, ok := v.(Unit); !ok {
			return mismatch(p, v)
		}
		e.p.PackLong(0)
	case abi.KindBool:
		b, ok := v.(Bool)
		if !ok {
			return mismatch(p, v)
		}
		if b {
			e.p.PackLong(1)
		} else {
			e.p.PackLong(0)
		}
	case abi.KindU8:
		n, ok := v.(U8)
		if !ok {
			return mismatch(p, v)
		}
		e.p.PackLong(uint64(n))
	case abi.KindU16:
		n, ok := v.(U16)
		if !ok {
			return mismatch(p, v)
		}
		e.p.PackLong(uint64(n))
	case abi.KindU32:
		n, ok := v.(U32)
		if !ok {
			return mismatch(p, v)
		}
		e.p.PackLong(uint64(n))
	case abi.KindU64:
		n, ok := v.(U64)
		if !ok {
			return mismatch(p, v)
		}
		e.p.PackLong(uint64(n))
	case abi.KindU128:
		n, ok := v.(U128)
		if !ok {
			return mismatch(p, v)
		}
		e.p.PackFixedBytes(n[:])
	case abi.KindU256:
		n, ok := v.(U256)
		if !ok {
			return mismatch(p, v)
		}
		e.p.PackFixedBytes(n[:])
	case abi.KindB256:
		h, ok := v.(B256)
		if !ok {
			return mismatch(p, v)
		}
		e.p.PackFixedBytes(h[:])
	case abi.KindStr:
		s, ok := v.(Str)
		if !ok {
			return mismatch(p, v)
		}
		if len(s) != p.Len {
			return fmt.Errorf("%w: %d bytes for %s", ErrSchemaMismatch, len(s), p)
		}
		buf := make([]byte, padded(p.Len))
		copy(buf, s)
		e.p.PackFixedBytes(buf)
	case abi.KindStruct:
		fields, ok := v.(Struct)
		if !ok {
			return mismatch(p, v)
		}
		return e.sequence(p, p.Components, fields)
	case abi.KindTuple:
		elems, ok := v.(Tuple)
		if !ok {
			return mismatch(p, v)
		}
		return e.sequence(p, p.Components, elems)
	case abi.KindArray:
		elems, ok := v.(Array)
		if !ok {
			return mismatch(p, v)
		}
		shapes := make([]abi.ParamType, p.Len)
		for i := range shapes {
			shapes[i] = p.Elem()
		}
		return e.sequence(p, shapes, elems)
	case abi.KindEnum, abi.KindOption:
		en, ok := v.(Enum)
		if !ok {
			return mismatch(p, v)
		}
		return e.enum(p, en)
	default:
		return fmt.Errorf("%w: can't encode %s", abi.ErrUnimplementedType, p)
	}
	return nil
}

func (e *encoder) sequence(p abi.ParamType, shapes []abi.ParamType, values []Value) error {
	if len(shapes) != len(values) {
		return fmt.Errorf("%w: %d values for %s with %d components", ErrSchemaMismatch, len(values), p, len(shapes))
	}
	for i, shape := range shapes {
		if err := e.encode(shape, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) enum(p abi.ParamType, v Enum) error {
	if v.Variant < 0 || v.Variant >= len(p.Components) {
		return fmt.Errorf("%w: %s has no variant %d", ErrSchemaMismatch, p, v.Variant)
	}
	e.p.PackLong(uint64(v.Variant))
	if p.UnitVariantsOnly() {
		if _, ok := v.Value.(Unit); !ok {
			return mismatch(p, v.Value)
		}
		return nil
	}

	widest, err := widestVariant(p)
	if err != nil {
		return err
	}
	payload := p.Components[v.Variant]
	n, err := EncodedLen(payload)
	if err != nil {
		return err
	}
	e.p.PackFixedBytes(make([]byte, widest-n))
	return e.encode(payload, v.Value)
}
