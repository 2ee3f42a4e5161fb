package symbolic

import (
	"strings"

	"github.com/xkilldash9x/actiongate/api/schemas"
)

var textInputTypes = map[string]bool{
	"text": true, "email": true, "password": true,
	"tel": true, "search": true, "url": true,
}

// ExtractAffordances derives default affordances from page elements: buttons,
// links and onclick handlers are clickable, text-like inputs and textareas
// accept text, selects accept an option. Each requires its element to be
// visible and enabled. Elements without an id are skipped.
func ExtractAffordances(elements []schemas.PageElement) []Affordance {
	var out []Affordance
	seen := make(map[string]bool)
	add := func(t schemas.ActionType, id string) {
		key := string(t) + ":" + id
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Affordance{
			ActionType:    t,
			Target:        id,
			Preconditions: []Predicate{ElementVisible(id), ElementEnabled(id)},
		})
	}

	for _, el := range elements {
		if el.ID == "" {
			continue
		}
		tag := strings.ToLower(el.Tag)

		if tag == "button" || tag == "a" || el.Attributes["onclick"] != "" {
			add(schemas.ActionClick, el.ID)
		}
		if tag == "input" || tag == "textarea" {
			inputType := strings.ToLower(el.Attributes["type"])
			if inputType == "" {
				inputType = "text"
			}
			if textInputTypes[inputType] {
				add(schemas.ActionInputText, el.ID)
			}
		}
		if tag == "select" {
			add(schemas.ActionSelectOption, el.ID)
		}
	}
	return out
}
