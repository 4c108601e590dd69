// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package abi

import "errors"

var (
	ErrUnknownType       = errors.New("unknown type")
	ErrUnknownTypeID     = errors.New("unknown type id")
	ErrUnknownLogID      = errors.New("unknown log id")
	ErrMalformedABI      = errors.New("malformed abi")
	ErrCyclicType        = errors.New("type contains itself")
	ErrUnimplementedType = errors.New("unimplemented type")
)
