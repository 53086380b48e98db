// Package types defines the source language's type algebra: the scalar
// kinds, pointers, arrays, and structs that flow from the (out-of-scope)
// type checker into the MIR builder and beyond.
package types

import "fmt"

// Kind tags the shape of a Type.
type Kind int

const (
	KindUnknown Kind = iota
	KindInt
	KindLong
	KindFloat
	KindChar
	KindBool
	KindVoid
	KindPointer
	KindArray
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindChar:
		return "char"
	case KindBool:
		return "bool"
	case KindVoid:
		return "void"
	case KindPointer:
		return "pointer"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	default:
		return "unknown"
	}
}

// Field is one named, typed member of a struct.
type Field struct {
	Name string
	Type Type
}

// Type is a tagged value over the source language's type algebra. Only the
// fields relevant to Kind are populated; the rest are zero.
type Type struct {
	Kind Kind

	Elem *Type // Pointer(T), Array(T, ...)
	Len  *int  // Array's optional length; nil means unknown/unsized

	Name     string  // Struct name
	Fields   []Field // Struct fields, in declaration order
	IsUnion  bool    // Struct is a union: every field offset is 0
	Generics []Type  // optional generic arguments, carried but not specialized here
}

func Int() Type    { return Type{Kind: KindInt} }
func Long() Type    { return Type{Kind: KindLong} }
func Float() Type   { return Type{Kind: KindFloat} }
func Char() Type    { return Type{Kind: KindChar} }
func Bool() Type    { return Type{Kind: KindBool} }
func Void() Type    { return Type{Kind: KindVoid} }
func Unknown() Type { return Type{Kind: KindUnknown} }

func Pointer(elem Type) Type {
	e := elem
	return Type{Kind: KindPointer, Elem: &e}
}

func Array(elem Type, length *int) Type {
	e := elem
	return Type{Kind: KindArray, Elem: &e, Len: length}
}

func Struct(name string, fields []Field, isUnion bool) Type {
	return Type{Kind: KindStruct, Name: name, Fields: fields, IsUnion: isUnion}
}

// Size returns the byte width of the type.
func (t Type) Size() int {
	switch t.Kind {
	case KindChar, KindBool:
		return 1
	case KindInt, KindFloat:
		return 4
	case KindLong, KindPointer:
		return 8
	case KindArray:
		length := 0
		if t.Len != nil {
			length = *t.Len
		}
		return t.Elem.Size() * length
	case KindStruct:
		return t.structSize()
	default:
		return 0
	}
}

// Align returns the natural alignment of the type. Structs take the
// maximum alignment of their fields.
func (t Type) Align() int {
	switch t.Kind {
	case KindChar, KindBool:
		return 1
	case KindInt, KindFloat:
		return 4
	case KindLong, KindPointer:
		return 8
	case KindArray:
		return t.Elem.Align()
	case KindStruct:
		max := 1
		for _, f := range t.Fields {
			if a := f.Type.Align(); a > max {
				max = a
			}
		}
		return max
	default:
		return 1
	}
}

// FitsInRegister reports whether a value of this type can live entirely
// in a single machine register: true for scalars and pointers only.
func (t Type) FitsInRegister() bool {
	switch t.Kind {
	case KindInt, KindLong, KindFloat, KindChar, KindBool, KindPointer:
		return true
	default:
		return false
	}
}

// structSize computes the round-up-and-pack (or union, max-of-fields)
// size described in spec §3/§4.2.
func (t Type) structSize() int {
	if t.IsUnion {
		max := 0
		for _, f := range t.Fields {
			if s := f.Type.Size(); s > max {
				max = s
			}
		}
		return roundUp(max, t.Align())
	}
	offset := 0
	for _, f := range t.Fields {
		offset = roundUp(offset, f.Type.Align())
		offset += f.Type.Size()
	}
	return roundUp(offset, t.Align())
}

// FieldOffsets computes each field's byte offset: 0 for every field of a
// union, round-up-and-pack in declaration order otherwise.
func (t Type) FieldOffsets() map[string]int {
	offsets := make(map[string]int, len(t.Fields))
	if t.IsUnion {
		for _, f := range t.Fields {
			offsets[f.Name] = 0
		}
		return offsets
	}
	offset := 0
	for _, f := range t.Fields {
		offset = roundUp(offset, f.Type.Align())
		offsets[f.Name] = offset
		offset += f.Type.Size()
	}
	return offsets
}

// Field looks up a field by name, returning its type and whether it was found.
func (t Type) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

func (t Type) String() string {
	switch t.Kind {
	case KindPointer:
		return fmt.Sprintf("*%s", t.Elem)
	case KindArray:
		if t.Len != nil {
			return fmt.Sprintf("[%d]%s", *t.Len, t.Elem)
		}
		return fmt.Sprintf("[]%s", t.Elem)
	case KindStruct:
		if t.IsUnion {
			return "union " + t.Name
		}
		return "struct " + t.Name
	default:
		return t.Kind.String()
	}
}

// Equal reports structural equality, the way the type checker would
// compare two resolved types.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindPointer, KindArray:
		if (t.Elem == nil) != (other.Elem == nil) {
			return false
		}
		if t.Elem != nil && !t.Elem.Equal(*other.Elem) {
			return false
		}
		if t.Kind == KindArray {
			if (t.Len == nil) != (other.Len == nil) {
				return false
			}
			if t.Len != nil && *t.Len != *other.Len {
				return false
			}
		}
		return true
	case KindStruct:
		return t.Name == other.Name
	default:
		return true
	}
}
