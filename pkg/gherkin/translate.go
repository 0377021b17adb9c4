package gherkin

import (
	"context"
	"fmt"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
)

// Translator turns free-text test cases into Gherkin scenarios.
type Translator struct {
	Model core.LanguageModel
}

// ToScenario returns text unchanged when it already is Gherkin; otherwise
// it asks the model for a translation and validates the answer.
func (t *Translator) ToScenario(ctx context.Context, text string) (string, error) {
	if IsGherkin(text) {
		return text, nil
	}
	if t == nil || t.Model == nil {
		return "", core.ErrInvalidScenario.WithMessage("test is not Gherkin and no language model is configured")
	}

	resp, err := t.Model.Complete(ctx, translationPrompt(text))
	if err != nil {
		return "", core.ErrAgentInvocation.WithMessage("scenario translation failed").WithCause(err)
	}
	scenario := StripCodeFence(resp)
	if err := Validate(scenario); err != nil {
		logger.Warn("translated scenario rejected: %v", err)
		return "", err
	}
	logger.Info("translated test case into %d steps", len(ParseSteps(scenario)))
	return scenario, nil
}

func translationPrompt(text string) string {
	return fmt.Sprintf(`Convert this manual test case into one Gherkin scenario.

%s

Keep every URL, value, email and password exactly as written.
Map "go to X" to "Given I navigate to X", actions to When steps and checks to Then steps.
Reply with the Gherkin only: a Feature line, a Scenario line and the steps.`, "```\n"+text+"\n```")
}
