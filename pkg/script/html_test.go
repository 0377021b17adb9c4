package script

import (
	"testing"
)

func TestDescriptorFromHTML(t *testing.T) {
	d, err := DescriptorFromHTML(`<BUTTON type="submit" id="go" class="btn-primary">  Sign <b>in</b> </BUTTON>`)
	if err != nil {
		t.Fatalf("DescriptorFromHTML() error = %v", err)
	}
	if d.Tag != "button" {
		t.Errorf("Tag = %q, want button", d.Tag)
	}
	if d.VisibleText != "Sign in" {
		t.Errorf("VisibleText = %q, want %q", d.VisibleText, "Sign in")
	}
	attrs := d.Attributes.List()
	if len(attrs) != 3 || attrs[0].Name != "type" || attrs[1].Name != "id" || attrs[2].Name != "class" {
		t.Errorf("Attributes = %+v, want type, id, class in order", attrs)
	}
}

func TestDescriptorFromHTML_NoElement(t *testing.T) {
	if _, err := DescriptorFromHTML("just text"); err == nil {
		t.Error("DescriptorFromHTML(text) expected error")
	}
}
