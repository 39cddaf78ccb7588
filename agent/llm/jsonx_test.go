package llm

import (
	"errors"
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare object", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced json", in: "Claro!\n```json\n{\"a\":1}\n```\nobrigado", want: `{"a":1}`},
		{name: "fenced without tag", in: "```\n{\"b\":2}\n```", want: `{"b":2}`},
		{name: "prose around object", in: `Aqui vai: {"a":{"b":2}} fim`, want: `{"a":{"b":2}}`},
		{name: "brace inside string", in: `{"text":"use {chaves} e \"aspas\"","x":1} resto`, want: `{"text":"use {chaves} e \"aspas\"","x":1}`},
		{name: "first of two objects", in: `{"a":1} {"b":2}`, want: `{"a":1}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractJSONObject(tt.in)
			if err != nil {
				t.Fatalf("ExtractJSONObject() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ExtractJSONObject() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSONObjectFailures(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "sem json aqui", `{"a": "unterminated`, `{"a":{}`} {
		if _, err := ExtractJSONObject(in); !errors.Is(err, ErrNoJSONObject) {
			t.Fatalf("ExtractJSONObject(%q) error = %v, want ErrNoJSONObject", in, err)
		}
	}
}
