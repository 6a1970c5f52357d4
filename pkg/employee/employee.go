// Package employee defines the personnel record model shared by the
// extraction, resolution, and sync layers: the record shape, the fixed set
// of dependency fields, and the validated input snapshot a resolution run
// operates on.
package employee

// Record is one personnel record destined for the target system. UserID is
// the identity; the three relationship fields may reference another record
// by userid or be empty. Values are opaque strings beyond identity matching.
type Record struct {
	UserID        string `json:"userid"`
	Manager       string `json:"manager,omitempty"`
	MatrixManager string `json:"matrix_manager,omitempty"`
	HR            string `json:"hr,omitempty"`
}

// Field names one of the relationship fields that participate in creation
// ordering. The set is fixed; extending it means adding a descriptor to
// Fields.
type Field string

const (
	FieldManager       Field = "manager"
	FieldMatrixManager Field = "matrix_manager"
	FieldHR            Field = "hr"
)

// FieldDescriptor binds a dependency field's name to its accessor and
// clearer so callers can walk the field set without reflection.
type FieldDescriptor struct {
	Name  Field
	Value func(*Record) string
	Clear func(*Record)
}

var fieldDescriptors = []FieldDescriptor{
	{
		Name:  FieldManager,
		Value: func(r *Record) string { return r.Manager },
		Clear: func(r *Record) { r.Manager = "" },
	},
	{
		Name:  FieldMatrixManager,
		Value: func(r *Record) string { return r.MatrixManager },
		Clear: func(r *Record) { r.MatrixManager = "" },
	},
	{
		Name:  FieldHR,
		Value: func(r *Record) string { return r.HR },
		Clear: func(r *Record) { r.HR = "" },
	},
}

// Fields returns the dependency-field descriptors in canonical order
// (manager, matrix_manager, hr). The returned slice is shared; callers must
// not modify it.
func Fields() []FieldDescriptor {
	return fieldDescriptors
}

// Ref is one populated dependency field on a record.
type Ref struct {
	Field Field
	Value string
}

// Refs returns r's populated dependency fields in canonical field order.
func (r *Record) Refs() []Ref {
	var refs []Ref
	for _, d := range fieldDescriptors {
		if v := d.Value(r); v != "" {
			refs = append(refs, Ref{Field: d.Name, Value: v})
		}
	}
	return refs
}

// ClearField empties the named dependency field. Unknown names are ignored.
func (r *Record) ClearField(name Field) {
	for _, d := range fieldDescriptors {
		if d.Name == name {
			d.Clear(r)
			return
		}
	}
}
