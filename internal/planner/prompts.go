// internal/planner/prompts.go
package planner

import (
	"fmt"
)

const planSystemPrompt = `You are a precise browser automation planner. ` +
	`You translate one high-level user task into an ordered list of atomic UI steps ` +
	`to be executed against the current page. You answer with strict JSON only.`

const planExample = `[
  {
    "action": "click",
    "selector": "button[data-testid='new-project']",
    "desc": "Click the New Project button to open the create-project modal"
  },
  {
    "action": "type",
    "selector": "input[name='name']",
    "value": "AI Test Project",
    "desc": "Type the project name into the name input"
  },
  {
    "action": "submit",
    "selector": "form",
    "desc": "Submit the form to create the project"
  }
]`

// uiPlanPrompt asks for a strict JSON array of step objects. The DOM snapshot
// is already trimmed by the caller.
func uiPlanPrompt(task, domSnapshot string) string {
	return fmt.Sprintf(`The user task is:
%s

Here is the current DOM snapshot (trimmed):
%s

Produce a JSON array (and ONLY a JSON array) of step objects. Each step object must include:
  - "action": one of ["navigate","click","type","select","wait","submit"]
  - "selector": CSS selector targeting the element (required for click/type/select/submit; for navigate use the URL)
  - For type/select: "value"
  - "desc": short human-readable description of the step

Important constraints:
- Prefer in-page actions (clicks, typing) over navigating by constructing URLs.
- Each step must be atomic; never merge several interactions into one step.
- Prefer stable selectors (data- attributes, roles). Otherwise use CSS that clearly targets the intended element.
- If waiting is necessary, include an explicit step with action "wait" and "value" set to the number of seconds.
- Keep the plan focused on completing the user's task without side effects.

Example output (strict JSON):
%s

Return only JSON.`, task, domSnapshot, planExample)
}
