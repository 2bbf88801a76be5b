package metadata

import "sort"

type Collection struct {
	Name       string            `json:"collection"`
	PrimaryKey string            `json:"primary"`
	Singleton  bool              `json:"singleton,omitempty"`
	Fields     map[string]*Field `json:"fields"`
}

// GetField returns the field with the given name, or nil.
func (c *Collection) GetField(name string) *Field {
	if c == nil {
		return nil
	}
	return c.Fields[name]
}

// HasField returns true if the collection has a field with the given name.
func (c *Collection) HasField(name string) bool {
	return c.GetField(name) != nil
}

// PrimaryKeyField returns the primary key's field metadata.
func (c *Collection) PrimaryKeyField() *Field {
	return c.GetField(c.PrimaryKey)
}

// FieldNames returns all field names in sorted order.
func (c *Collection) FieldNames() []string {
	names := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ColumnNames returns the names of fields stored as columns, skipping aliases.
func (c *Collection) ColumnNames() []string {
	var names []string
	for _, name := range c.FieldNames() {
		if !c.Fields[name].IsAlias() {
			names = append(names, name)
		}
	}
	return names
}
