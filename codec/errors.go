// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import "errors"

var (
	ErrDecode         = errors.New("couldn't decode value")
	ErrSchemaMismatch = errors.New("value does not match its declared type")
)
