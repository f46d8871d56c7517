package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleStep struct {
	Action   string `json:"action"`
	Selector string `json:"selector"`
	Value    string `json:"value"`
}

func TestParseJSONResponse_BareArray(t *testing.T) {
	resp := `[{"action":"click","selector":"#new"},{"action":"type","selector":"input","value":"X"}]`

	steps, err := ParseJSONResponse[[]sampleStep](resp)
	require.NoError(t, err)
	require.Len(t, *steps, 2)
	assert.Equal(t, "click", (*steps)[0].Action)
	assert.Equal(t, "X", (*steps)[1].Value)
}

func TestParseJSONResponse_MarkdownFencedArray(t *testing.T) {
	resp := "Here is the plan:\n```json\n[{\"action\":\"wait\",\"value\":\"2\"}]\n```\nGood luck!"

	steps, err := ParseJSONResponse[[]sampleStep](resp)
	require.NoError(t, err)
	require.Len(t, *steps, 1)
	assert.Equal(t, "wait", (*steps)[0].Action)
}

func TestParseJSONResponse_MarkdownFencedObject(t *testing.T) {
	resp := "```\n{\"action\":\"submit\",\"selector\":\"form\"}\n```"

	step, err := ParseJSONResponse[sampleStep](resp)
	require.NoError(t, err)
	assert.Equal(t, "submit", step.Action)
}

func TestParseJSONResponse_ConversationalWrapping(t *testing.T) {
	resp := `Sure! The steps are [{"action":"click","selector":"button"}] as requested.`

	steps, err := ParseJSONResponse[[]sampleStep](resp)
	require.NoError(t, err)
	require.Len(t, *steps, 1)
}

func TestParseJSONResponse_NoJSON(t *testing.T) {
	_, err := ParseJSONResponse[[]sampleStep]("I could not determine any steps for this task.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JSON found")
}

func TestParseJSONResponse_MalformedJSON(t *testing.T) {
	_, err := ParseJSONResponse[[]sampleStep](`[{"action": "click", "selector": }]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal")
}

func TestFirstURL(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{"bare url", "https://linear.app", "https://linear.app", true},
		{"url inside prose", "The base website is https://linear.app, as requested.", "https://linear.app", true},
		{"backticked url", "`https://linear.app/team/new`", "https://linear.app/team/new", true},
		{"quoted url", `"https://app.example.com/login"`, "https://app.example.com/login", true},
		{"trailing punctuation", "Go to https://example.com/projects.", "https://example.com/projects", true},
		{"http scheme", "http://localhost:3000/admin", "http://localhost:3000/admin", true},
		{"no url at all", "no idea where that task happens", "", false},
		{"ftp not matched", "ftp://example.com/file", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, found := FirstURL(tc.text)
			assert.Equal(t, tc.found, found)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	assert.Equal(t, "", Truncate("abc", 0))
}
