// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package abi

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the shape tag of a type declaration. It is established once when the
// catalog is parsed so that downstream code never re-parses display strings.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindUnit
	KindBool
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindU256
	KindB256
	KindStr
	KindString
	KindBytes
	KindVector
	KindRawVec
	KindRawPtr
	KindRawSlice
	KindGeneric
	KindOption
	KindStruct
	KindEnum
	KindArray
	KindTuple
)

var kindNames = map[Kind]string{
	KindUnknown:  "unknown",
	KindUnit:     "unit",
	KindBool:     "bool",
	KindU8:       "u8",
	KindU16:      "u16",
	KindU32:      "u32",
	KindU64:      "u64",
	KindU128:     "u128",
	KindU256:     "u256",
	KindB256:     "b256",
	KindStr:      "str",
	KindString:   "String",
	KindBytes:    "Bytes",
	KindVector:   "Vec",
	KindRawVec:   "RawVec",
	KindRawPtr:   "raw ptr",
	KindRawSlice: "raw slice",
	KindGeneric:  "generic",
	KindOption:   "Option",
	KindStruct:   "struct",
	KindEnum:     "enum",
	KindArray:    "array",
	KindTuple:    "tuple",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsScalar returns true for kinds stored as a single column value.
func (k Kind) IsScalar() bool {
	switch k {
	case KindBool, KindU8, KindU16, KindU32, KindU64, KindU128, KindU256, KindB256, KindStr:
		return true
	default:
		return false
	}
}

// IsUnsigned returns true for the unsigned integer kinds of up to 64 bits.
func (k Kind) IsUnsigned() bool {
	switch k {
	case KindU8, KindU16, KindU32, KindU64:
		return true
	default:
		return false
	}
}

const (
	structPrefix  = "struct "
	enumPrefix    = "enum "
	genericPrefix = "generic "
	rawPrefix     = "raw "
)

// classify derives the kind of a declaration from its display string. It
// returns the un-prefixed name for structs and enums and the length for
// arrays and string arrays.
func classify(typeField string) (kind Kind, name string, length int, err error) {
	switch typeField {
	case "()":
		return KindUnit, "", 0, nil
	case "bool":
		return KindBool, "", 0, nil
	case "u8":
		return KindU8, "", 0, nil
	case "u16":
		return KindU16, "", 0, nil
	case "u32":
		return KindU32, "", 0, nil
	case "u64":
		return KindU64, "", 0, nil
	case "u128":
		return KindU128, "", 0, nil
	case "u256":
		return KindU256, "U256", 0, nil
	case "b256":
		return KindB256, "", 0, nil
	case "str":
		return KindString, "", 0, nil
	}

	switch {
	case strings.HasPrefix(typeField, structPrefix):
		name := structName(strings.TrimPrefix(typeField, structPrefix))
		switch name {
		case "U256":
			return KindU256, name, 0, nil
		case "String":
			return KindString, name, 0, nil
		case "Bytes":
			return KindBytes, name, 0, nil
		case "Vec":
			return KindVector, name, 0, nil
		case "RawVec", "RawBytes":
			return KindRawVec, name, 0, nil
		}
		return KindStruct, name, 0, nil
	case strings.HasPrefix(typeField, enumPrefix):
		name := structName(strings.TrimPrefix(typeField, enumPrefix))
		if name == "Option" {
			return KindOption, name, 0, nil
		}
		return KindEnum, name, 0, nil
	case strings.HasPrefix(typeField, genericPrefix):
		return KindGeneric, strings.TrimPrefix(typeField, genericPrefix), 0, nil
	case strings.HasPrefix(typeField, rawPrefix):
		if strings.HasSuffix(typeField, "slice") {
			return KindRawSlice, "", 0, nil
		}
		return KindRawPtr, "", 0, nil
	case strings.HasPrefix(typeField, "str[") && strings.HasSuffix(typeField, "]"):
		n, err := strconv.Atoi(typeField[len("str[") : len(typeField)-1])
		if err != nil || n < 0 {
			return KindUnknown, "", 0, fmt.Errorf("%w: bad string length in %q", ErrMalformedABI, typeField)
		}
		return KindStr, "", n, nil
	case strings.HasPrefix(typeField, "[") && strings.HasSuffix(typeField, "]"):
		idx := strings.LastIndex(typeField, ";")
		if idx < 0 {
			return KindUnknown, "", 0, fmt.Errorf("%w: bad array type %q", ErrMalformedABI, typeField)
		}
		n, err := strconv.Atoi(strings.TrimSpace(typeField[idx+1 : len(typeField)-1]))
		if err != nil || n < 0 {
			return KindUnknown, "", 0, fmt.Errorf("%w: bad array length in %q", ErrMalformedABI, typeField)
		}
		return KindArray, "", n, nil
	case strings.HasPrefix(typeField, "(") && strings.HasSuffix(typeField, ")"):
		return KindTuple, "", 0, nil
	}
	return KindUnknown, "", 0, fmt.Errorf("%w: unrecognized type %q", ErrUnimplementedType, typeField)
}

// structName strips a module path (std::option::Option) down to the last
// segment.
func structName(path string) string {
	if idx := strings.LastIndex(path, "::"); idx >= 0 {
		return path[idx+2:]
	}
	return path
}
