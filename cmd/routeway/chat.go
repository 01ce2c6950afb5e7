package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhuss/routeway/pkg/api"
	"github.com/rhuss/routeway/pkg/request"
	"github.com/rhuss/routeway/pkg/stream"
	"github.com/rhuss/routeway/pkg/tools/mcp"
)

type chatFlags struct {
	model       string
	system      string
	stream      bool
	temperature float64
	maxTokens   int
	maxTurns    int
	allowTools  []string
}

func newChatCommand(a *app) *cobra.Command {
	f := &chatFlags{}
	cmd := &cobra.Command{
		Use:   "chat [flags] PROMPT",
		Short: "Send a prompt and print the assistant reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.chat(cmd.Context(), cmd.OutOrStdout(), f, strings.Join(args, " "))
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.model, "model", "m", "gpt-4o-mini", "model to use")
	fl.StringVarP(&f.system, "system", "s", "", "system prompt")
	fl.BoolVar(&f.stream, "stream", false, "stream the reply as it is generated")
	fl.Float64Var(&f.temperature, "temperature", -1, "sampling temperature (unset when negative)")
	fl.IntVar(&f.maxTokens, "max-tokens", 0, "maximum tokens to generate (unset when 0)")
	fl.IntVar(&f.maxTurns, "max-turns", 5, "maximum tool-calling rounds when MCP servers are configured")
	fl.StringSliceVar(&f.allowTools, "allow-tool", nil, "restrict MCP tool calls to these names")
	return cmd
}

func (f *chatFlags) options(tools []api.Tool) []request.Option {
	var opts []request.Option
	if f.temperature >= 0 {
		opts = append(opts, request.WithTemperature(f.temperature))
	}
	if f.maxTokens > 0 {
		opts = append(opts, request.WithMaxTokens(f.maxTokens))
	}
	if len(tools) > 0 {
		opts = append(opts, request.WithTools(tools...))
	}
	if f.stream {
		opts = append(opts, request.WithStreamOptions(api.StreamOptions{IncludeUsage: true}))
	}
	return opts
}

// chat runs one conversation. When MCP tools are available, tool calls
// requested by the model are executed and fed back until the model answers
// without them or maxTurns is reached.
func (a *app) chat(ctx context.Context, out io.Writer, f *chatFlags, prompt string) error {
	ctx = a.scoped(ctx)

	var messages []api.MessageParam
	if f.system != "" {
		messages = append(messages, api.SystemMessage(f.system))
	}
	messages = append(messages, api.UserMessage(prompt))

	var tools []api.Tool
	if a.tools != nil {
		tools = a.tools.Tools(ctx)
	}
	opts := f.options(tools)

	for turn := 0; ; turn++ {
		reply, err := a.turn(ctx, out, f, messages, opts)
		if err != nil {
			return err
		}
		messages = append(messages, reply)

		if len(reply.ToolCalls) == 0 || a.tools == nil {
			if !f.stream {
				fmt.Fprintln(out, reply.Content)
			}
			return nil
		}
		if turn+1 >= f.maxTurns {
			return fmt.Errorf("model still requested tools after %d turns", f.maxTurns)
		}

		allowed, rejected := mcp.Filter(reply.ToolCalls, f.allowTools)
		results, err := a.tools.ExecuteAll(ctx, allowed)
		if err != nil {
			return err
		}
		for _, m := range append(results, rejected...) {
			messages = append(messages, m)
		}
	}
}

// turn performs one request and returns the assistant message.
func (a *app) turn(ctx context.Context, out io.Writer, f *chatFlags, messages []api.MessageParam, opts []request.Option) (api.ChatMessage, error) {
	if !f.stream {
		resp, err := a.client.ChatCompletion(ctx, f.model, messages, opts...)
		if err != nil {
			return api.ChatMessage{}, err
		}
		if len(resp.Choices) == 0 {
			return api.ChatMessage{Role: api.RoleAssistant}, nil
		}
		return resp.Choices[0].Message, nil
	}

	s, err := a.client.ChatCompletionStream(ctx, f.model, messages, opts...)
	if err != nil {
		return api.ChatMessage{}, err
	}
	defer s.Close()

	var acc stream.Accumulator
	for chunk, err := range s.All() {
		if err != nil {
			return api.ChatMessage{}, err
		}
		acc.Add(chunk)
		for _, c := range chunk.Choices {
			if c.Index == 0 && c.Delta.Content != nil {
				fmt.Fprint(out, *c.Delta.Content)
			}
		}
	}
	fmt.Fprintln(out)
	return acc.Message(), nil
}
