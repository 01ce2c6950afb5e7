// Package transport sends authenticated HTTP requests to the chat
// completion API and maps every failure onto the api error taxonomy.
//
// The Adapter owns one connection pool for its lifetime. Its round tripper
// stack is, from the outside in:
//
//	retry (cenkalti/backoff) -> metrics -> otelhttp -> pooled *http.Transport
//
// so every attempt is measured and traced, and retries only ever happen
// before a response is handed back to the caller.
//
// # Failure mapping
//
// A response with a non-2xx status becomes an *api.Error whose kind follows
// the status (401 Auth, 429 RateLimit, 5xx Server, anything else HTTP) and
// whose message comes from the {"error":{"message":...}} envelope when the
// body carries one. A request that never produced a response becomes a
// Timeout or Connection error.
package transport
