// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"fmt"
	"math"

	"github.com/ava-labs/avalanchego/utils/wrappers"

	"github.com/ava-labs/abistore/abi"
)

// Decode interprets [data] as the encoding of a value of type [typeID].
// The whole buffer must be consumed.
func Decode(c *abi.Catalog, typeID int, data []byte) (Value, error) {
	p, err := c.ParamType(typeID)
	if err != nil {
		return nil, err
	}
	return DecodeParam(p, data)
}

// DecodeParam interprets [data] as the encoding of a value of shape [p].
func DecodeParam(p abi.ParamType, data []byte) (Value, error) {
	// Every shape has a fixed size, so the buffer is checked before anything
	// is allocated for it.
	size, err := EncodedLen(p)
	if err != nil {
		return nil, err
	}
	if size != len(data) {
		return nil, fmt.Errorf("%w: %s takes %d bytes, got %d", ErrDecode, p, size, len(data))
	}
	d := decoder{p: &wrappers.Packer{Bytes: data}}
	v, err := d.decode(p)
	if err != nil {
		return nil, err
	}
	if d.p.Offset != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes after %s", ErrDecode, len(data)-d.p.Offset, p)
	}
	return v, nil
}

type decoder struct {
	p *wrappers.Packer
}

func (d *decoder) check(p abi.ParamType) error {
	if d.p.Errored() {
		return fmt.Errorf("%w: %s at offset %d: %v", ErrDecode, p, d.p.Offset, d.p.Err)
	}
	return nil
}

// word reads one 8-byte word and rejects values above [max].
func (d *decoder) word(p abi.ParamType, max uint64) (uint64, error) {
	w := d.p.UnpackLong()
	if err := d.check(p); err != nil {
		return 0, err
	}
	if w > max {
		return 0, fmt.Errorf("%w: %d overflows %s", ErrDecode, w, p)
	}
	return w, nil
}

func (d *decoder) fixed(p abi.ParamType, n int) ([]byte, error) {
	b := d.p.UnpackFixedBytes(n)
	return b, d.check(p)
}

func (d *decoder) decode(p abi.ParamType) (Value, error) {
	switch p.Kind {
	case abi.KindUnit:
		if _, err := d.word(p, math.MaxUint64); err != nil {
			return nil, err
		}
		return Unit{}, nil
	case abi.KindBool:
		w, err := d.word(p, 1)
		return Bool(w == 1), err
	case abi.KindU8:
		w, err := d.word(p, math.MaxUint8)
		return U8(w), err
	case abi.KindU16:
		w, err := d.word(p, math.MaxUint16)
		return U16(w), err
	case abi.KindU32:
		w, err := d.word(p, math.MaxUint32)
		return U32(w), err
	case abi.KindU64:
		w, err := d.word(p, math.MaxUint64)
		return U64(w), err
	case abi.KindU128:
		b, err := d.fixed(p, u128Len)
		if err != nil {
			return nil, err
		}
		var u U128
		copy(u[:], b)
		return u, nil
	case abi.KindU256:
		b, err := d.fixed(p, u256Len)
		if err != nil {
			return nil, err
		}
		var u U256
		copy(u[:], b)
		return u, nil
	case abi.KindB256:
		b, err := d.fixed(p, u256Len)
		if err != nil {
			return nil, err
		}
		var h B256
		copy(h[:], b)
		return h, nil
	case abi.KindStr:
		b, err := d.fixed(p, padded(p.Len))
		if err != nil {
			return nil, err
		}
		return Str(b[:p.Len]), nil
	case abi.KindStruct:
		fields, err := d.sequence(p.Components)
		return Struct(fields), err
	case abi.KindTuple:
		elems, err := d.sequence(p.Components)
		return Tuple(elems), err
	case abi.KindArray:
		elem := p.Elem()
		values := make(Array, p.Len)
		for i := range values {
			v, err := d.decode(elem)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	case abi.KindEnum, abi.KindOption:
		return d.enum(p)
	default:
		return nil, fmt.Errorf("%w: can't decode %s", abi.ErrUnimplementedType, p)
	}
}

func (d *decoder) sequence(components []abi.ParamType) ([]Value, error) {
	values := make([]Value, len(components))
	for i, c := range components {
		v, err := d.decode(c)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (d *decoder) enum(p abi.ParamType) (Value, error) {
	discriminant, err := d.word(p, math.MaxUint64)
	if err != nil {
		return nil, err
	}
	if discriminant >= uint64(len(p.Components)) {
		return nil, fmt.Errorf("%w: %s has no variant %d", ErrDecode, p, discriminant)
	}
	variant := int(discriminant)
	if p.UnitVariantsOnly() {
		return Enum{Variant: variant, Value: Unit{}}, nil
	}

	widest, err := widestVariant(p)
	if err != nil {
		return nil, err
	}
	payload := p.Components[variant]
	n, err := EncodedLen(payload)
	if err != nil {
		return nil, err
	}
	if _, err := d.fixed(p, widest-n); err != nil {
		return nil, err
	}
	v, err := d.decode(payload)
	if err != nil {
		return nil, err
	}
	return Enum{Variant: variant, Value: v}, nil
}
