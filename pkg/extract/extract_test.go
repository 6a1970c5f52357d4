package extract

import (
	"reflect"
	"testing"

	"github.com/peoplehub/ecsync/pkg/employee"
)

func TestClassifySplitsByTargetMembership(t *testing.T) {
	source := []employee.Record{
		{UserID: "a1", Manager: "a2"},
		{UserID: "a2"},
		{UserID: "a3", HR: "h1"},
	}
	c := Classify(source, []string{"a2", "h1"})

	wantNew := []employee.Record{
		{UserID: "a1", Manager: "a2"},
		{UserID: "a3", HR: "h1"},
	}
	if !reflect.DeepEqual(c.New, wantNew) {
		t.Fatalf("New = %+v", c.New)
	}
	if !reflect.DeepEqual(c.Existing, []string{"a2"}) {
		t.Fatalf("Existing = %v", c.Existing)
	}
	if c.SourceCount != 3 || c.TargetCount != 2 {
		t.Fatalf("SourceCount=%d TargetCount=%d", c.SourceCount, c.TargetCount)
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	c := Classify([]employee.Record{{UserID: "Alice"}}, []string{"ALICE"})
	if len(c.New) != 0 {
		t.Fatalf("New = %+v, want none", c.New)
	}
	if !reflect.DeepEqual(c.Existing, []string{"alice"}) {
		t.Fatalf("Existing = %v", c.Existing)
	}
}

func TestClassifyEmptyTarget(t *testing.T) {
	c := Classify([]employee.Record{{UserID: "a"}}, nil)
	if len(c.New) != 1 || len(c.Existing) != 0 {
		t.Fatalf("New=%v Existing=%v", c.New, c.Existing)
	}
}
