package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]any
		wantErr bool
	}{
		{
			name:    "bare object",
			content: `{"selector": "#btn", "confidence": 0.9}`,
			want:    map[string]any{"selector": "#btn", "confidence": 0.9},
		},
		{
			name: "fenced json",
			content: "```json\n{\"selector\": \"#btn\"}\n```",
			want: map[string]any{"selector": "#btn"},
		},
		{
			name: "fenced without language tag",
			content: "```\n{\"ok\": true}\n```",
			want: map[string]any{"ok": true},
		},
		{
			name:    "prose around the object",
			content: `Sure, here is the result: {"selector": ".x"} hope that helps`,
			want:    map[string]any{"selector": ".x"},
		},
		{
			name:    "no json at all",
			content: "I could not find the element.",
			wantErr: true,
		},
		{
			name:    "malformed json",
			content: `{"selector": `,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeJSON(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
