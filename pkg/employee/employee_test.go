package employee

import (
	"reflect"
	"testing"
)

func TestFieldsOrder(t *testing.T) {
	var names []Field
	for _, d := range Fields() {
		names = append(names, d.Name)
	}
	want := []Field{FieldManager, FieldMatrixManager, FieldHR}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("field order = %v, want %v", names, want)
	}
}

func TestRefsSkipsEmptyFields(t *testing.T) {
	r := Record{UserID: "a", Manager: "m", HR: "h"}
	got := r.Refs()
	want := []Ref{{FieldManager, "m"}, {FieldHR, "h"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Refs = %v, want %v", got, want)
	}
	if refs := (&Record{UserID: "b"}).Refs(); refs != nil {
		t.Fatalf("Refs on bare record = %v, want nil", refs)
	}
}

func TestClearField(t *testing.T) {
	r := Record{UserID: "a", Manager: "m", MatrixManager: "x", HR: "h"}
	r.ClearField(FieldMatrixManager)
	if r.MatrixManager != "" || r.Manager != "m" || r.HR != "h" {
		t.Fatalf("after clear: %+v", r)
	}
	r.ClearField("unknown")
	if r.Manager != "m" {
		t.Fatal("unknown field name should be a no-op")
	}
}

func TestDescriptorsRoundTrip(t *testing.T) {
	r := Record{UserID: "a", Manager: "m", MatrixManager: "x", HR: "h"}
	for _, d := range Fields() {
		if d.Value(&r) == "" {
			t.Fatalf("descriptor %s read empty value", d.Name)
		}
		d.Clear(&r)
		if d.Value(&r) != "" {
			t.Fatalf("descriptor %s did not clear", d.Name)
		}
	}
}
