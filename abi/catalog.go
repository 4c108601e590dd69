// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package abi

import (
	"bytes"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
)

// Catalog is the immutable, in-memory form of a program ABI. It is safe to
// share between goroutines once built.
type Catalog struct {
	// type id => declaration, dense
	decls []*TypeDecl
	// type name => type id
	typeIDs map[string]int
	// type id => instantiated shape, for declarations that have one
	params map[int]ParamType
	// logged type id => type id
	loggedTypes map[uint64]int
}

type document struct {
	Types       []typeEntry   `json:"types"`
	LoggedTypes []loggedEntry `json:"loggedTypes"`
}

type typeEntry struct {
	TypeID         *int          `json:"typeId"`
	Type           string        `json:"type"`
	Components     []application `json:"components"`
	TypeParameters []int         `json:"typeParameters"`
}

type application struct {
	Name          string        `json:"name"`
	Type          int           `json:"type"`
	TypeArguments []application `json:"typeArguments"`
}

type loggedEntry struct {
	LogID      logID       `json:"logId"`
	LoggedType application `json:"loggedType"`
}

// logID accepts both the numeric and the quoted form of a log id.
type logID uint64

func (l *logID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad log id %s: %v", ErrMalformedABI, b, err)
	}
	*l = logID(v)
	return nil
}

func toComponents(apps []application) []Component {
	if len(apps) == 0 {
		return nil
	}
	components := make([]Component, len(apps))
	for i, a := range apps {
		components[i] = Component{
			Name:          a.Name,
			TypeID:        a.Type,
			TypeArguments: toComponents(a.TypeArguments),
		}
	}
	return components
}

// Parse builds a Catalog out of a JSON program ABI. Building is all or
// nothing: any malformed entry aborts it.
func Parse(abiJSON []byte) (*Catalog, error) {
	doc := document{}
	if err := json.Unmarshal(abiJSON, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedABI, err)
	}

	c := &Catalog{
		decls:       make([]*TypeDecl, len(doc.Types)),
		typeIDs:     make(map[string]int, len(doc.Types)),
		params:      make(map[int]ParamType, len(doc.Types)),
		loggedTypes: make(map[uint64]int, len(doc.LoggedTypes)),
	}

	for i, entry := range doc.Types {
		if entry.TypeID == nil || *entry.TypeID != i {
			return nil, fmt.Errorf("%w: type %q at index %d has a mismatched typeId", ErrMalformedABI, entry.Type, i)
		}
		kind, name, length, err := classify(entry.Type)
		if err != nil {
			return nil, err
		}
		c.decls[i] = &TypeDecl{
			TypeID:         i,
			Type:           entry.Type,
			Kind:           kind,
			Name:           name,
			Components:     toComponents(entry.Components),
			TypeParameters: entry.TypeParameters,
			Len:            length,
		}
		// Anonymous shapes such as "[_; 3]" may repeat. The first one wins.
		if _, ok := c.typeIDs[entry.Type]; !ok {
			c.typeIDs[entry.Type] = i
		}
	}

	for _, decl := range c.decls {
		if err := c.checkReferences(decl.Type, decl.Components); err != nil {
			return nil, err
		}
		for _, p := range decl.TypeParameters {
			if p < 0 || p >= len(c.decls) || c.decls[p].Kind != KindGeneric {
				return nil, fmt.Errorf("%w: %q has a type parameter %d that is not generic", ErrMalformedABI, decl.Type, p)
			}
		}
	}

	r := newResolver(c.decls)
	for _, decl := range c.decls {
		if !hasParamType(decl) {
			continue
		}
		p, err := r.resolve(decl.TypeID, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("couldn't construct param type for %q: %w", decl.Type, err)
		}
		c.params[decl.TypeID] = p
	}

	for _, lt := range doc.LoggedTypes {
		typeID := lt.LoggedType.Type
		if typeID < 0 || typeID >= len(c.decls) {
			return nil, fmt.Errorf("%w: log %d refers to type %d", ErrUnknownTypeID, lt.LogID, typeID)
		}
		c.loggedTypes[uint64(lt.LogID)] = typeID
	}
	return c, nil
}

func (c *Catalog) checkReferences(owner string, components []Component) error {
	for _, comp := range components {
		if comp.TypeID < 0 || comp.TypeID >= len(c.decls) {
			return fmt.Errorf("%w: %q component %q refers to type %d", ErrUnknownTypeID, owner, comp.Name, comp.TypeID)
		}
		if err := c.checkReferences(owner, comp.TypeArguments); err != nil {
			return err
		}
	}
	return nil
}

// hasParamType filters out the declarations that cannot be instantiated on
// their own: generic parameters, raw pointers and uninstantiated generics.
func hasParamType(decl *TypeDecl) bool {
	switch decl.Kind {
	case KindGeneric, KindRawPtr, KindRawSlice, KindRawVec, KindVector:
		return false
	}
	return len(decl.TypeParameters) == 0
}

// TypeID returns the id of the type whose display name is [name], e.g.
// "struct Point".
func (c *Catalog) TypeID(name string) (int, error) {
	id, ok := c.typeIDs[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return id, nil
}

// Declaration returns the declaration of type [typeID].
func (c *Catalog) Declaration(typeID int) (*TypeDecl, error) {
	if typeID < 0 || typeID >= len(c.decls) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTypeID, typeID)
	}
	return c.decls[typeID], nil
}

// ParamType returns the instantiated shape of type [typeID]. Generic, raw and
// uninstantiated declarations have none.
func (c *Catalog) ParamType(typeID int) (ParamType, error) {
	p, ok := c.params[typeID]
	if !ok {
		if _, err := c.Declaration(typeID); err != nil {
			return ParamType{}, err
		}
		return ParamType{}, fmt.Errorf("%w: type %d has no concrete shape", ErrUnimplementedType, typeID)
	}
	return p, nil
}

// LoggedType maps the id of a runtime log event to the type it carries.
func (c *Catalog) LoggedType(logID uint64) (int, error) {
	id, ok := c.loggedTypes[logID]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownLogID, logID)
	}
	return id, nil
}

// Declarations returns every declaration ordered by type id. The returned
// slice must not be modified.
func (c *Catalog) Declarations() []*TypeDecl { return c.decls }

// Len returns the number of declarations.
func (c *Catalog) Len() int { return len(c.decls) }
