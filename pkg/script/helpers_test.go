package script

import (
	"github.com/devicelab-dev/hybrid-runner/pkg/core"
)

func desc(tag string, attrs ...string) *core.ElementDescriptor {
	var list []core.Attribute
	for i := 0; i+1 < len(attrs); i += 2 {
		list = append(list, core.Attribute{Name: attrs[i], Value: attrs[i+1]})
	}
	return &core.ElementDescriptor{Tag: tag, Attributes: core.NewAttributes(list...)}
}

func sampleScript() *Script {
	email := desc("input", "id", "email", "name", "email", "type", "email")
	email.XPath = "/html/body/form/input[1]"
	return &Script{
		Name:    "login",
		Version: InitialVersion,
		Steps: []Step{
			&NavigationStep{BaseStep: BaseStep{StepType: StepNavigation}, URL: "https://example.com/login"},
			&InputStep{BaseStep: BaseStep{StepType: StepInput}, Locators: DeriveBundle(email), Value: "a@b.c", ElementTag: "input"},
			&ClickStep{BaseStep: BaseStep{StepType: StepClick}, Locators: DeriveBundle(desc("button", "data-testid", "submit")), ElementTag: "button", ElementText: "Sign in"},
			&ScrollStep{BaseStep: BaseStep{StepType: StepScroll}, DeltaY: 500},
		},
		Metadata: Metadata{Source: "agent", CaptureMethod: CaptureStructured},
	}
}
