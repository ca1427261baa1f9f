package model

import (
	"fmt"
	"time"
)

// FieldType is the storage type of a field.
type FieldType string

const (
	TypeString     FieldType = "string"
	TypeInt        FieldType = "int"
	TypeFloat      FieldType = "float"
	TypeBool       FieldType = "bool"
	TypeDateTime   FieldType = "datetime"
	TypeDate       FieldType = "date"
	TypeStringList FieldType = "string_list"
	TypeIntList    FieldType = "int_list"
	TypeFloatList  FieldType = "float_list"
	TypeMap        FieldType = "map"
	TypeAny        FieldType = "any"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeDateTime, TypeDate,
		TypeStringList, TypeIntList, TypeFloatList, TypeMap, TypeAny:
		return true
	}
	return false
}

// IsList reports whether t holds a list of scalars.
func (t FieldType) IsList() bool {
	return t == TypeStringList || t == TypeIntList || t == TypeFloatList
}

// Elem returns the scalar type of a list type, or t itself.
func (t FieldType) Elem() FieldType {
	switch t {
	case TypeStringList:
		return TypeString
	case TypeIntList:
		return TypeInt
	case TypeFloatList:
		return TypeFloat
	}
	return t
}

// Ordered reports whether values of t support magnitude comparisons.
func (t FieldType) Ordered() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeDateTime, TypeDate, TypeAny:
		return true
	}
	return false
}

// Accepts reports whether v can be stored in a field of type t. nil is
// always accepted; required-ness is checked separately.
func (t FieldType) Accepts(v any) bool {
	if v == nil || t == TypeAny {
		return true
	}
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeInt:
		return isInt(v)
	case TypeFloat:
		return isInt(v) || isFloat(v)
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeDateTime, TypeDate:
		_, ok := v.(time.Time)
		return ok
	case TypeMap:
		_, ok := v.(map[string]any)
		return ok
	case TypeStringList, TypeIntList, TypeFloatList:
		return acceptsList(t.Elem(), v)
	}
	return false
}

func acceptsList(elem FieldType, v any) bool {
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			if !elem.Accepts(item) {
				return false
			}
		}
		return true
	case []string:
		return elem == TypeString
	case []int, []int64:
		return elem == TypeInt || elem == TypeFloat
	case []float64:
		return elem == TypeFloat
	}
	return false
}

func isInt(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return true
	}
	return false
}

func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return false
}

// Field declares one typed property of an entity or edge kind.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	// Validate holds go-playground/validator tags applied to the value,
	// for example "min=0,max=150".
	Validate string
	// Default is stored on create when the caller omits the field.
	Default any
}

func (f Field) String() string {
	return fmt.Sprintf("%s %s", f.Name, f.Type)
}

// Implicit field names.
const (
	FieldUID       = "uid"
	FieldIsDeleted = "is_deleted"
	FieldDeletedAt = "deleted_at"
	FieldTTL       = "ttl"
)
