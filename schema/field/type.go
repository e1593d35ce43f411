package field

// Type is the semantic type of a property.
type Type uint8

// Property types.
const (
	TypeInvalid Type = iota
	TypeString
	TypeInteger
	TypeNumber
	TypeBool
	TypeDate
	TypeDateTime
	TypeEnum
	endTypes
)

var typeNames = [...]string{
	TypeInvalid:  "invalid",
	TypeString:   "string",
	TypeInteger:  "integer",
	TypeNumber:   "number",
	TypeBool:     "boolean",
	TypeDate:     "date",
	TypeDateTime: "datetime",
	TypeEnum:     "enum",
}

// String returns the type name.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return typeNames[TypeInvalid]
}

// Valid reports if the type is a known property type.
func (t Type) Valid() bool {
	return t > TypeInvalid && t < endTypes
}

// ParseType returns the type for its name as printed by String.
// Unknown names yield TypeInvalid.
func ParseType(name string) Type {
	for t, n := range typeNames {
		if n == name && Type(t) != TypeInvalid {
			return Type(t)
		}
	}
	switch name {
	case "date-time", "timestamp":
		return TypeDateTime
	case "bool":
		return TypeBool
	}
	return TypeInvalid
}
