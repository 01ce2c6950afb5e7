package request

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/rhuss/routeway/pkg/api"
)

func userHi() []api.MessageParam {
	return []api.MessageParam{api.RawMessage{"role": "user", "content": "hi"}}
}

func keys(p Payload) []string {
	var out []string
	for k := range p {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestBuild_MinimalPayload(t *testing.T) {
	p, err := Build("m", userHi())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	got := keys(p)
	want := []string{"messages", "model"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("keys = %v, want %v", got, want)
	}
	if p.Stream() {
		t.Error("Stream() = true, want false")
	}
}

// Each optional key is present if and only if the caller supplied it.
func TestBuild_OnlySuppliedKeys(t *testing.T) {
	budget := 512
	tests := []struct {
		name string
		opt  Option
		key  string
	}{
		{"stream", WithStream(), "stream"},
		{"temperature", WithTemperature(0), "temperature"},
		{"max_tokens", WithMaxTokens(100), "max_tokens"},
		{"top_p", WithTopP(0.9), "top_p"},
		{"frequency_penalty", WithFrequencyPenalty(0.1), "frequency_penalty"},
		{"presence_penalty", WithPresencePenalty(0.2), "presence_penalty"},
		{"stop", WithStop("\n"), "stop"},
		{"tools", WithTools(api.NewTool(api.NewFunction("f", "", nil))), "tools"},
		{"tool_choice", WithToolChoice(api.ToolChoiceAuto), "tool_choice"},
		{"reasoning", WithReasoning(api.ReasoningConfig{Budget: &budget}), "reasoning"},
		{"stream_options", WithStreamOptions(api.StreamOptions{IncludeUsage: true}), "stream_options"},
		{"extra", WithExtra("user", "u-1"), "user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Build("m", userHi(), tt.opt)
			if err != nil {
				t.Fatalf("Build() error: %v", err)
			}
			if len(p) != 3 {
				t.Errorf("payload keys = %v, want model, messages and %q", keys(p), tt.key)
			}
			if _, ok := p[tt.key]; !ok {
				t.Errorf("key %q missing from payload %v", tt.key, keys(p))
			}
		})
	}
}

func TestBuild_ZeroValuesAreStillSupplied(t *testing.T) {
	p, err := Build("m", userHi(), WithTemperature(0), WithMaxTokens(0))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if v, ok := p["temperature"]; !ok || v != 0.0 {
		t.Errorf("temperature = %v (present=%v), want explicit 0", v, ok)
	}
	if v, ok := p["max_tokens"]; !ok || v != 0 {
		t.Errorf("max_tokens = %v (present=%v), want explicit 0", v, ok)
	}
}

func TestBuild_NamedOptionsWinOverExtra(t *testing.T) {
	p, err := Build("m", userHi(),
		WithExtra("temperature", 1.5),
		WithExtra("model", "other"),
		WithExtra("stream", true),
		WithExtra("seed", 7),
		WithTemperature(0.3),
	)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if p["temperature"] != 0.3 {
		t.Errorf("temperature = %v, want 0.3", p["temperature"])
	}
	if p.Model() != "m" {
		t.Errorf("model = %q, want m", p.Model())
	}
	if _, ok := p["stream"]; ok {
		t.Error("stream passed through Extra must not override the named stream flag")
	}
	if p["seed"] != 7 {
		t.Errorf("seed = %v, want 7", p["seed"])
	}
}

func TestBuild_TypedAndRawNormalizeIdentically(t *testing.T) {
	typed, err := Build("m", []api.MessageParam{api.UserMessage("hi")})
	if err != nil {
		t.Fatalf("Build(typed) error: %v", err)
	}
	raw, err := Build("m", userHi())
	if err != nil {
		t.Fatalf("Build(raw) error: %v", err)
	}

	a, _ := typed.JSON()
	b, _ := raw.JSON()
	if string(a) != string(b) {
		t.Errorf("typed payload %s != raw payload %s", a, b)
	}
}

func TestBuild_RawMessageIsCopied(t *testing.T) {
	raw := api.RawMessage{"role": "user", "content": "hi", "name": "ann"}
	p, err := Build("m", []api.MessageParam{raw})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	msgs := p["messages"].([]map[string]any)
	msgs[0]["content"] = "changed"
	if raw["content"] != "hi" {
		t.Error("Build must not alias the caller's RawMessage")
	}
	if msgs[0]["name"] != "ann" {
		t.Errorf("extra raw keys should pass through, got %v", msgs[0])
	}
}

func TestBuild_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		messages  []api.MessageParam
		opts      []Option
		wantParam string
	}{
		{"empty model", "", userHi(), nil, "model"},
		{"blank model", "   ", userHi(), nil, "model"},
		{"no messages", "m", nil, nil, "messages"},
		{"missing content", "m", []api.MessageParam{api.RawMessage{"role": "user"}}, nil, "messages[0]"},
		{"missing role", "m", []api.MessageParam{api.UserMessage("ok"), api.RawMessage{"content": "x"}}, nil, "messages[1]"},
		{"typed without role", "m", []api.MessageParam{api.ChatMessage{Content: "x"}}, nil, "messages[0]"},
		{"nil typed pointer", "m", []api.MessageParam{(*api.ChatMessage)(nil)}, nil, "messages[0]"},
		{"nil message", "m", []api.MessageParam{nil}, nil, "messages[0]"},
		{"unnamed function", "m", userHi(), []Option{WithTools(api.NewTool(api.NewFunction("", "", nil)))}, "tools[0].function.name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.model, tt.messages, tt.opts...)
			if err == nil {
				t.Fatal("Build() error = nil, want validation error")
			}
			if !api.IsKind(err, api.KindValidation) {
				t.Fatalf("error kind = %q, want validation", api.KindOf(err))
			}
			apiErr := err.(*api.Error)
			if apiErr.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", apiErr.Param, tt.wantParam)
			}
		})
	}
}

func TestBuild_WireShape(t *testing.T) {
	p, err := Build("gpt-4", []api.MessageParam{api.SystemMessage("sys"), api.UserMessage("hi")},
		WithStream(),
		WithStop("a", "b"),
		WithToolChoice(api.ToolChoiceFunction("f")),
		WithStreamOptions(api.StreamOptions{IncludeUsage: true}),
	)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	data, err := p.JSON()
	if err != nil {
		t.Fatalf("JSON() error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["stream"] != true {
		t.Errorf("stream = %v, want true", decoded["stream"])
	}
	if stop := decoded["stop"].([]any); len(stop) != 2 {
		t.Errorf("stop = %v, want 2 entries", stop)
	}
	tc := decoded["tool_choice"].(map[string]any)
	if tc["type"] != "function" {
		t.Errorf("tool_choice = %v", tc)
	}
	so := decoded["stream_options"].(map[string]any)
	if so["include_usage"] != true {
		t.Errorf("stream_options = %v", so)
	}
	if msgs := decoded["messages"].([]any); len(msgs) != 2 {
		t.Errorf("messages = %v, want 2", msgs)
	}
}
