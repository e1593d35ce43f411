package descriptor

import (
	"math"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/syssam/graphsync/schema/field"
)

var titleCaser = cases.Title(language.English)

// Title returns the human readable title of a property or entity name,
// e.g. "createdAt" becomes "Created At".
func Title(name string) string {
	return titleCaser.String(inflect.Humanize(inflect.Underscore(name)))
}

// JSONSchema describes the table, including its linked associations, as a
// JSON schema object. Hidden properties are left out.
func (t *Table) JSONSchema() map[string]any {
	name := t.Name
	if t.Alias != "" {
		name = t.Alias
	}
	return t.jsonSchema(Title(name))
}

func (t *Table) jsonSchema(title string) map[string]any {
	props := make(map[string]any, len(t.Properties)+len(t.Associations))
	required := []string{}
	for _, fd := range t.Properties {
		if fd.Hidden() {
			continue
		}
		props[fd.Name] = propertySchema(fd)
		if fd.Required && !fd.Generated {
			required = append(required, fd.Name)
		}
	}
	for _, a := range t.Associations {
		if a.Kind == ToOne {
			props[a.Name] = a.Child.jsonSchema(Title(a.Name))
			continue
		}
		props[a.Name] = map[string]any{
			"title": Title(a.Name),
			"type":  "array",
			"items": a.Child.jsonSchema(Title(inflect.Singularize(a.Name))),
		}
	}
	s := map[string]any{
		"title":      title,
		"type":       "object",
		"properties": props,
		"primaryKey": append([]string(nil), t.PrimaryKeyAttributes...),
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func propertySchema(fd *field.Descriptor) map[string]any {
	s := map[string]any{}
	switch fd.Type {
	case field.TypeString:
		s["type"] = "string"
		if fd.MaxLength > 0 {
			s["maxLength"] = fd.MaxLength
		}
	case field.TypeEnum:
		s["type"] = "string"
		s["enum"] = append([]string(nil), fd.Enum...)
	case field.TypeInteger:
		s["type"] = "integer"
	case field.TypeNumber:
		s["type"] = "number"
		if fd.Decimals > 0 {
			s["multipleOf"] = math.Pow10(-fd.Decimals)
		}
	case field.TypeBool:
		s["type"] = "boolean"
	case field.TypeDate:
		s["type"] = "string"
		s["format"] = "date"
	case field.TypeDateTime:
		s["type"] = "string"
		s["format"] = "date-time"
	}
	if fd.Format != "" {
		s["format"] = fd.Format
	}
	if fd.Title != "" {
		s["title"] = fd.Title
	} else {
		s["title"] = Title(fd.Name)
	}
	if fd.Comment != "" {
		s["description"] = fd.Comment
	}
	if fd.Generated {
		s["readOnly"] = true
	}
	if _, ok := fd.Default.(func() any); !ok && fd.Default != nil {
		s["default"] = fd.Default
	}
	return s
}
