package promptstore

import (
	"fmt"
	"os"
	"strings"

	"github.com/watchloom/pagewatch/internal/schemas"
)

const interactiveDOMBudget = 4000

const defaultSystemTemplate = `You are a browser automation planner. You translate a natural-language
instruction into a deterministic sequence of browser actions against the
page at {{url}}.`

const defaultUserPlanTemplate = `Instruction: {{instruction}}
Target URL: {{url}}
{{#if pageText}}Page text excerpt:
{{pageText}}
{{else}}No page text excerpt is available.
{{/if}}
Respond with a single JSON plan object matching the required schema.`

const defaultInteractiveStepTemplate = `Instruction: {{instruction}}
Current URL: {{state.url}}
DOM (truncated):
{{state.dom}}
{{#if previousSteps}}Previous steps taken:
{{previousSteps}}
{{else}}This is the first step.
{{/if}}
Respond with the single next action as a JSON step object, plus a progress
score in [0,1] and whether the task is now complete.`

// Name identifies one of the three supported templates.
type Name string

const (
	TemplateSystem          Name = "system"
	TemplateUserPlan        Name = "user-plan"
	TemplateInteractiveStep Name = "interactive-step"
)

// Store loads template bodies from disk with built-in fallbacks, so the
// process never fails to start for a missing template file.
type Store struct {
	templates map[Name]string
}

// New loads the three templates from dir (if non-empty), substituting the
// built-in default for any file that is missing or unreadable.
func New(dir string) *Store {
	s := &Store{templates: map[Name]string{
		TemplateSystem:          defaultSystemTemplate,
		TemplateUserPlan:        defaultUserPlanTemplate,
		TemplateInteractiveStep: defaultInteractiveStepTemplate,
	}}
	if dir == "" {
		return s
	}
	for name := range s.templates {
		path := dir + "/" + string(name) + ".tmpl"
		if body, err := os.ReadFile(path); err == nil {
			s.templates[name] = string(body)
		}
	}
	return s
}

const maxInstructionLength = 2000

// ValidateTaskInputs enforces the shared validation rules PlanGenerator and
// InteractiveAgent both need before rendering a prompt.
func ValidateTaskInputs(instruction, url string) error {
	if strings.TrimSpace(instruction) == "" {
		return fmt.Errorf("instruction must not be empty")
	}
	if len(instruction) > maxInstructionLength {
		return fmt.Errorf("instruction exceeds maximum length of %d characters", maxInstructionLength)
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("url must be an http(s) URL")
	}
	return nil
}

// RenderSystem renders the system-role prompt for one plan-generation call.
func (s *Store) RenderSystem(url string) string {
	return Render(s.templates[TemplateSystem], Vars{"url": url})
}

// RenderUserPlan renders the user-role prompt that requests a full plan.
func (s *Store) RenderUserPlan(instruction, url, pageText string) string {
	return Render(s.templates[TemplateUserPlan], Vars{
		"instruction": instruction,
		"url":         url,
		"pageText":    pageText,
	})
}

// RenderInteractiveStep renders the single-next-action prompt, truncating
// the DOM to interactiveDOMBudget characters.
func (s *Store) RenderInteractiveStep(instruction string, state schemas.BrowserState, previousSteps string) string {
	dom := state.DOM
	if len(dom) > interactiveDOMBudget {
		dom = dom[:interactiveDOMBudget]
	}
	return Render(s.templates[TemplateInteractiveStep], Vars{
		"instruction":   instruction,
		"previousSteps": previousSteps,
		"state": map[string]interface{}{
			"url": state.URL,
			"dom": dom,
		},
	})
}
