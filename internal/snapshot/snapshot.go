// Package snapshot serializes a resolved type table with msgpack so
// code-generation backends can consume an analysis result without
// re-running resolution. The payload is versioned: a schema bump
// invalidates old snapshots instead of misreading them.
package snapshot

import (
	"fmt"
	"io"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"abi/internal/resolve"
)

// Bump when the wire layout below changes.
const schemaVersion uint16 = 1

// VersionError reports a snapshot written by an incompatible build.
type VersionError struct {
	Got, Want uint16
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("snapshot schema version %d, expected %d", e.Got, e.Want)
}

type payload struct {
	Schema uint16
	Types  []wireType
}

type wirePrim struct {
	Bits   uint16
	Signed bool
	Float  bool
}

type wireParams struct {
	Paths []string
	Prims []wirePrim
}

type wireExpr struct {
	Op   uint8
	Val  uint64
	Path []string
	Type string
	X    *wireExpr
	Y    *wireExpr
}

// wireField carries struct fields and every variant flavor: Tag is
// the enum tag value or the size-union expected size.
type wireField struct {
	Name         string
	Type         *wireType
	HasOffset    bool
	Offset       uint64
	Tag          uint64
	NeedsPayload bool
}

type wireKind struct {
	Which         uint8
	Prim          wirePrim
	Fields        []wireField
	Packed        bool
	AlignOverride uint64
	Tag           *wireExpr
	TagConst      bool
	TagParams     wireParams
	Count         *wireExpr
	CountConst    bool
	CountParams   wireParams
	Jagged        bool
	Elem          *wireType
	Target        string
}

type wireType struct {
	Name       string
	Variable   bool
	Bytes      uint64
	SizeParams wireParams
	Align      uint64
	DynOwners  []string
	DynPaths   [][]string
	Comment    string
	Kind       wireKind
}

const (
	kindPrimitive uint8 = iota + 1
	kindStruct
	kindUnion
	kindEnum
	kindArray
	kindSizeUnion
	kindRef
)

// Encode writes the table as a versioned snapshot. Types are emitted
// in name order so identical tables produce identical bytes.
func Encode(w io.Writer, table resolve.Table) error {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	p := payload{Schema: schemaVersion, Types: make([]wireType, 0, len(names))}
	for _, name := range names {
		p.Types = append(p.Types, *encodeType(table[name]))
	}
	return msgpack.NewEncoder(w).Encode(&p)
}

// Decode reads a snapshot back into a resolved table, rejecting
// payloads from an incompatible schema version.
func Decode(r io.Reader) (resolve.Table, error) {
	var p payload
	if err := msgpack.NewDecoder(r).Decode(&p); err != nil {
		return nil, err
	}
	if p.Schema != schemaVersion {
		return nil, &VersionError{Got: p.Schema, Want: schemaVersion}
	}
	table := make(resolve.Table, len(p.Types))
	for i := range p.Types {
		table[p.Types[i].Name] = decodeType(&p.Types[i])
	}
	return table, nil
}
