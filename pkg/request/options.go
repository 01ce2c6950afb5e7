package request

import "github.com/rhuss/routeway/pkg/api"

// Options holds the optional generation parameters of a chat completion.
// A nil pointer or nil slice means "not supplied" and the key is left out
// of the payload so the server applies its own default.
type Options struct {
	Stream           bool
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stop             []string
	Tools            []api.Tool
	ToolChoice       *api.ToolChoice
	Reasoning        *api.ReasoningConfig
	StreamOptions    *api.StreamOptions

	// Extra keys are copied into the payload verbatim. Named parameters
	// win over an Extra key with the same name.
	Extra map[string]any
}

// Option configures Options.
type Option func(*Options)

// Apply folds opts into a fresh Options value.
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithStream requests a streamed response.
func WithStream() Option {
	return func(o *Options) { o.Stream = true }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Options) { o.Temperature = &t }
}

// WithMaxTokens limits the number of generated tokens.
func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = &n }
}

// WithTopP sets nucleus sampling.
func WithTopP(p float64) Option {
	return func(o *Options) { o.TopP = &p }
}

// WithFrequencyPenalty sets the frequency penalty.
func WithFrequencyPenalty(p float64) Option {
	return func(o *Options) { o.FrequencyPenalty = &p }
}

// WithPresencePenalty sets the presence penalty.
func WithPresencePenalty(p float64) Option {
	return func(o *Options) { o.PresencePenalty = &p }
}

// WithStop sets one or more stop sequences.
func WithStop(stop ...string) Option {
	return func(o *Options) { o.Stop = append([]string{}, stop...) }
}

// WithTools offers tools to the model.
func WithTools(tools ...api.Tool) Option {
	return func(o *Options) { o.Tools = append(o.Tools, tools...) }
}

// WithToolChoice controls tool selection.
func WithToolChoice(choice api.ToolChoice) Option {
	return func(o *Options) { o.ToolChoice = &choice }
}

// WithReasoning configures reasoning.
func WithReasoning(cfg api.ReasoningConfig) Option {
	return func(o *Options) { o.Reasoning = &cfg }
}

// WithStreamOptions sets stream options such as usage reporting.
func WithStreamOptions(so api.StreamOptions) Option {
	return func(o *Options) { o.StreamOptions = &so }
}

// WithExtra passes an arbitrary key through to the payload.
func WithExtra(key string, value any) Option {
	return func(o *Options) {
		if o.Extra == nil {
			o.Extra = make(map[string]any)
		}
		o.Extra[key] = value
	}
}
