package schemas

import "fmt"

// ActionType names a browser action proposed by the planning LLM.
type ActionType string

const (
	ActionClick        ActionType = "click"
	ActionInputText    ActionType = "input_text"
	ActionSelectOption ActionType = "select_option"
	ActionCheckbox     ActionType = "checkbox"
	ActionUploadFile   ActionType = "upload_file"
	ActionWait         ActionType = "wait"
	ActionReloadPage   ActionType = "reload_page"
	ActionSolveCaptcha ActionType = "solve_captcha"
	ActionTerminate    ActionType = "terminate"
	ActionComplete     ActionType = "complete"
	ActionNullAction   ActionType = "null_action"
)

// globalTarget stands in for the target of actions that do not address an element.
const globalTarget = "global"

// SelectOption identifies an option of a <select> element by label, value or index.
type SelectOption struct {
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
	Index *int   `json:"index,omitempty" yaml:"index,omitempty"`
}

// Action is a single candidate step produced by the LLM-planning collaborator.
// Target is the element id the action addresses; it is empty for page-level
// actions such as wait or terminate.
type Action struct {
	ID        string                 `json:"id,omitempty" yaml:"id,omitempty"`
	Type      ActionType             `json:"type" yaml:"type"`
	Target    string                 `json:"target,omitempty" yaml:"target,omitempty"`
	Text      string                 `json:"text,omitempty" yaml:"text,omitempty"`
	Option    *SelectOption          `json:"option,omitempty" yaml:"option,omitempty"`
	Checked   *bool                  `json:"checked,omitempty" yaml:"checked,omitempty"`
	Seconds   int                    `json:"seconds,omitempty" yaml:"seconds,omitempty"`
	Reasoning string                 `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Fingerprint is the identity key used for loop detection: "type:target".
func (a Action) Fingerprint() string {
	target := a.Target
	if target == "" {
		target = globalTarget
	}
	return fmt.Sprintf("%s:%s", a.Type, target)
}

// String renders the action as type(target), e.g. click(submit_btn).
func (a Action) String() string {
	if a.Target == "" {
		return string(a.Type) + "()"
	}
	return fmt.Sprintf("%s(%s)", a.Type, a.Target)
}
