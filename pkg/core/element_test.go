package core

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAttributes_PreservesOrderThroughJSON(t *testing.T) {
	desc := ElementDescriptor{
		Tag: "input",
		Attributes: NewAttributes(
			Attribute{"type", "email"},
			Attribute{"name", "email"},
			Attribute{"placeholder", "Email"},
			Attribute{"class", "form-control input-lg"},
		),
		XPath: "/html/body/form/input[1]",
	}

	data, err := json.Marshal(desc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `{"type":"email","name":"email","placeholder":"Email","class":"form-control input-lg"}`) {
		t.Errorf("Marshal() = %s, attribute order lost", data)
	}

	var back ElementDescriptor
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	var names []string
	for _, a := range back.Attributes.List() {
		names = append(names, a.Name)
	}
	if got := strings.Join(names, ","); got != "type,name,placeholder,class" {
		t.Errorf("attribute order = %s, want type,name,placeholder,class", got)
	}
	if got := back.Attributes.Classes(); len(got) != 2 || got[1] != "input-lg" {
		t.Errorf("Classes() = %v", got)
	}
}

func TestElementDescriptor_CloneIsIndependent(t *testing.T) {
	d := &ElementDescriptor{
		Tag:         "BUTTON",
		Attributes:  NewAttributes(Attribute{"id", "go"}),
		BoundingBox: &BoundingBox{X: 1, Y: 2, Width: 3, Height: 4},
	}
	c := d.Clone()
	c.BoundingBox.X = 99

	if d.BoundingBox.X != 1 {
		t.Error("Clone() shares BoundingBox")
	}
	if c.Attr("id") != "go" {
		t.Errorf("Clone().Attr(id) = %q, want go", c.Attr("id"))
	}
	if c.TagName() != "button" {
		t.Errorf("TagName() = %q, want button", c.TagName())
	}

	var nilDesc *ElementDescriptor
	if nilDesc.Attr("id") != "" || nilDesc.Clone() != nil {
		t.Error("nil descriptor should be safe")
	}
}

func TestRunResult_AddFallback(t *testing.T) {
	var r RunResult
	r.AddFallback(3)
	r.AddFallback(1)
	r.AddFallback(3)

	if len(r.FallbackStepIndices) != 2 || r.FallbackStepIndices[0] != 1 || r.FallbackStepIndices[1] != 3 {
		t.Errorf("FallbackStepIndices = %v, want [1 3]", r.FallbackStepIndices)
	}
}

func TestStepOutcome_DisplayStatus(t *testing.T) {
	o := StepOutcome{Status: StatusPassed, Inferred: true}
	if o.DisplayStatus() != StatusInferred {
		t.Errorf("DisplayStatus() = %v, want inferred", o.DisplayStatus())
	}
	o.Inferred = false
	if o.DisplayStatus() != StatusPassed {
		t.Errorf("DisplayStatus() = %v, want passed", o.DisplayStatus())
	}
}
