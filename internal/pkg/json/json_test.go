package json

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type idOnly struct {
	ID RawMessage `json:"id"`
}

func TestEncoder_Encode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{
			name:  "object with sorted keys",
			value: map[string]any{"b": 1, "a": "x"},
			want:  `{"a":"x","b":1}` + "\n",
		},
		{
			name:  "raw message kept verbatim",
			value: idOnly{ID: RawMessage(`"abc"`)},
			want:  `{"id":"abc"}` + "\n",
		},
		{
			name:  "empty slice",
			value: []string{},
			want:  "[]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := &bytes.Buffer{}
			if err := NewEncoder(buf).Encode(tt.value); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			if diff := cmp.Diff(tt.want, buf.String()); diff != "" {
				t.Errorf("Encode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnmarshal(t *testing.T) {
	t.Parallel()

	var v struct {
		Method string     `json:"method"`
		ID     RawMessage `json:"id"`
	}
	if err := Unmarshal([]byte(`{"method":"ping","id":7}`), &v); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if v.Method != "ping" {
		t.Errorf("method = %q, want %q", v.Method, "ping")
	}
	if diff := cmp.Diff("7", string(v.ID)); diff != "" {
		t.Errorf("id mismatch (-want +got):\n%s", diff)
	}

	if err := Unmarshal([]byte(`{"method":`), &v); err == nil {
		t.Error("expected error for truncated input")
	}
}
