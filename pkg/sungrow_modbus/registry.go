package sungrow_modbus

import "fmt"

// Registry is the read-only name index over the variables of one device variant.
type Registry struct {
	byName  map[string]*VariableDefinition
	ordered []*VariableDefinition
}

func NewRegistry(defs []*VariableDefinition) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]*VariableDefinition, len(defs)),
		ordered: make([]*VariableDefinition, 0, len(defs)),
	}
	for _, d := range defs {
		if _, exists := r.byName[d.Name]; exists {
			return nil, fmt.Errorf("sungrow: duplicate variable %s", d.Name)
		}
		if d.Count == 0 || d.End() > 0x10000 {
			return nil, fmt.Errorf("sungrow: variable %s has an invalid register range", d.Name)
		}
		r.byName[d.Name] = d
		r.ordered = append(r.ordered, d)
	}
	return r, nil
}

func mustRegistry(defs []*VariableDefinition) *Registry {
	r, err := NewRegistry(defs)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Lookup(name string) (*VariableDefinition, bool) {
	d, ok := r.byName[name]
	return d, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	for i, d := range r.ordered {
		names[i] = d.Name
	}
	return names
}

func (r *Registry) Definitions() []*VariableDefinition {
	return append([]*VariableDefinition(nil), r.ordered...)
}

func (r *Registry) Len() int {
	return len(r.ordered)
}
