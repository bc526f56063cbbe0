package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain object", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n[1, 2]\n```", `[1, 2]`},
		{"leading chatter", "Here is the classification:\n\n{\"a\": 1}", `{"a": 1}`},
		{"trailing chatter", "{\"a\": {\"b\": 2}}\nLet me know if you need more.", `{"a": {"b": 2}}`},
		{"inline prefix", "Result => [{\"x\": 1}] done", `[{"x": 1}]`},
		{"whitespace", "  \n ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONContent(tt.content))
		})
	}
}
