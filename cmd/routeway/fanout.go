package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhuss/routeway/pkg/api"
	"github.com/rhuss/routeway/pkg/client"
)

func newFanoutCommand(a *app) *cobra.Command {
	var (
		model       string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "fanout [flags] PROMPT...",
		Short: "Send several prompts concurrently and print the replies in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := make([]client.ChatRequest, len(args))
			for i, prompt := range args {
				reqs[i] = client.ChatRequest{
					Model:    model,
					Messages: []api.MessageParam{api.UserMessage(prompt)},
				}
			}

			resps, err := client.Gather(a.scoped(cmd.Context()), a.client, concurrency, reqs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, resp := range resps {
				content := ""
				if len(resp.Choices) > 0 {
					content = resp.Choices[0].Message.Content
				}
				fmt.Fprintf(out, "[%d] %s\n%s\n\n", i+1, args[i], content)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "gpt-4o-mini", "model to use")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "maximum requests in flight")
	return cmd
}
