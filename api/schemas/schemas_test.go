package schemas_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/actiongate/api/schemas"
	"gopkg.in/yaml.v3"
)

func TestAction_FingerprintAndString(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name        string
		action      schemas.Action
		fingerprint string
		str         string
	}{
		{"targeted", schemas.Action{Type: schemas.ActionClick, Target: "submit_btn"}, "click:submit_btn", "click(submit_btn)"},
		{"global", schemas.Action{Type: schemas.ActionReloadPage}, "reload_page:global", "reload_page()"},
		{"text ignored", schemas.Action{Type: schemas.ActionInputText, Target: "email", Text: "a@b.c"}, "input_text:email", "input_text(email)"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.fingerprint, tc.action.Fingerprint())
			assert.Equal(t, tc.str, tc.action.String())
		})
	}
}

func TestPageElement_VisibilityAndState(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name    string
		attrs   map[string]string
		visible bool
		enabled bool
	}{
		{"plain", nil, true, true},
		{"hidden attribute", map[string]string{"hidden": ""}, false, true},
		{"display none", map[string]string{"style": "Display: None"}, false, true},
		{"visibility hidden", map[string]string{"style": "color:red; visibility: hidden"}, false, true},
		{"disabled", map[string]string{"disabled": ""}, true, false},
		{"disabled false", map[string]string{"disabled": "false"}, true, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			el := schemas.PageElement{ID: "x", Attributes: tc.attrs}
			assert.Equal(t, tc.visible, el.Visible())
			assert.Equal(t, tc.enabled, el.Enabled())
		})
	}
}

func TestSnapshot_Queries(t *testing.T) {
	t.Parallel()
	elements := []schemas.PageElement{
		{ID: "item", Tag: "li", Text: "first"},
		{ID: "item", Tag: "li", Text: "second"},
		{ID: "go", Tag: "button", Attributes: map[string]string{"disabled": ""}},
		{Tag: "div"},
	}
	snap := schemas.NewSnapshot("https://example.test/list", elements)

	// Later edits by the caller do not reach the snapshot.
	elements[2].Attributes["disabled"] = "false"
	elements[0].Text = "changed"

	assert.Equal(t, "https://example.test/list", snap.CurrentURL())

	exists, err := snap.ElementExists("missing")
	require.NoError(t, err)
	assert.False(t, exists)

	text, err := snap.ElementText("item")
	require.NoError(t, err)
	assert.Equal(t, "first", text, "the first element with an id wins")

	count, err := snap.ElementCount("item")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	enabled, err := snap.ElementEnabled("go")
	require.NoError(t, err)
	assert.False(t, enabled)

	_, err = snap.ElementVisible("missing")
	assert.ErrorIs(t, err, schemas.ErrElementNotFound)

	got := snap.Elements()
	require.Len(t, got, 4)
	got[0].Attributes["style"] = "display:none"
	visible, err := snap.ElementVisible("item")
	require.NoError(t, err)
	assert.True(t, visible)
}

func TestSnapshot_Nil(t *testing.T) {
	t.Parallel()
	var snap *schemas.Snapshot

	exists, err := snap.ElementExists("x")
	require.NoError(t, err)
	assert.False(t, exists)
	count, err := snap.ElementCount("x")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, snap.CurrentURL())
	assert.Nil(t, snap.Elements())
}

func TestSnapshotDocument_YAML(t *testing.T) {
	t.Parallel()
	src := `
url: https://example.test/form
elements:
  - id: name
    tag: input
    attributes:
      type: text
`
	var doc schemas.SnapshotDocument
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))

	snap := doc.Snapshot()
	assert.Equal(t, "https://example.test/form", snap.CurrentURL())
	exists, err := snap.ElementExists("name")
	require.NoError(t, err)
	assert.True(t, exists)
}
