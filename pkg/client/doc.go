// Package client is the entry point for calling a chat completion API.
//
// A Client composes the request builder, the transport adapter and the
// stream decoder. It exposes blocking calls that take a context and block
// the calling goroutine, and asynchronous variants that return a Future.
//
//	c, err := client.New(client.WithAPIKey("sk-..."))
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	resp, err := c.ChatCompletion(ctx, "gpt-4o", []api.MessageParam{
//		api.UserMessage("Hello"),
//	})
//
// Streamed completions return a *stream.Stream instead of a response:
//
//	s, err := c.ChatCompletionStream(ctx, "gpt-4o", msgs)
//	if err != nil {
//		return err
//	}
//	for chunk, err := range s.All() {
//		...
//	}
//
// Every error returned by this package is an *api.Error.
package client
