// Package api defines the wire types of the OpenAI-compatible chat
// completion API and the error taxonomy shared by all routeway packages.
//
// The package has no third-party dependencies and performs no I/O. Types
// that are sent to the server expose ToMap, which yields the mapping the
// request builder serializes; optional fields are omitted when unset rather
// than sent as null.
//
// Core types:
//   - [MessageParam]: a message accepted by the request builder, either a
//     typed [ChatMessage] or a free-form [RawMessage]
//   - [Tool], [Function], [ToolChoice]: caller-defined tools
//   - [ChatCompletionResponse] and [ChatCompletionChunk]: server replies,
//     which retain their raw JSON
//   - [Model] and [ModelList]: the model catalog
//   - [Error]: every failure, classified by [ErrorKind]
package api
