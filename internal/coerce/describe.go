// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package coerce

// Description is the serializable form of a Shape, used to show a loaded
// shape declaration to operators and tool clients.
type Description struct {
	Kind     Kind                    `json:"kind"`
	Name     string                  `json:"name,omitempty"`
	Default  any                     `json:"default,omitempty"`
	Required bool                    `json:"required,omitempty"`
	Minimum  *float64                `json:"minimum,omitempty"`
	Maximum  *float64                `json:"maximum,omitempty"`
	Clamp    bool                    `json:"clamp,omitempty"`
	MinItems *int                    `json:"minItems,omitempty"`
	MaxItems *int                    `json:"maxItems,omitempty"`
	Enum     []any                   `json:"enum,omitempty"`
	Open     bool                    `json:"open,omitempty"`
	Fields   map[string]*Description `json:"fields,omitempty"`
	Items    *Description            `json:"items,omitempty"`
	Variants []*Description          `json:"variants,omitempty"`
}

// Describe converts s into a Description. A nil shape yields nil.
func Describe(s *Shape) *Description {
	if s == nil {
		return nil
	}
	d := &Description{
		Kind:     s.Kind,
		Name:     s.Name,
		Required: s.Required,
		Minimum:  s.Minimum,
		Maximum:  s.Maximum,
		Clamp:    s.Clamp,
		MinItems: s.MinItems,
		MaxItems: s.MaxItems,
		Enum:     s.Enum,
	}
	if s.HasDefault {
		d.Default = s.Default
	}
	if s.Kind == KindList {
		d.Open = s.Policy == Open
	}
	if len(s.Fields) > 0 {
		d.Fields = make(map[string]*Description, len(s.Fields))
		for name, field := range s.Fields {
			d.Fields[name] = Describe(field)
		}
	}
	// open lists carry an implicit any item shape that says nothing useful
	if s.Items != nil && !(s.Kind == KindList && s.Policy == Open && s.Items.Kind == KindAny) {
		d.Items = Describe(s.Items)
	}
	for _, v := range s.Variants {
		d.Variants = append(d.Variants, Describe(v))
	}
	return d
}
