package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/rhuss/routeway/pkg/api"
	"github.com/tidwall/gjson"
)

// maxErrorBody caps how much of an error response body is read.
const maxErrorBody = 1 << 20

// MapHTTPError converts a non-2xx response into an *api.Error. It reads at
// most maxErrorBody bytes of the body looking for an OpenAI-style error
// envelope; when none is found the message falls back to a description of
// the status code. The body is not closed.
func MapHTTPError(resp *http.Response) *api.Error {
	env := ExtractErrorEnvelope(resp.Body)

	message := env.Message
	if message == "" {
		message = api.StatusMessage(resp.StatusCode)
	}

	e := api.NewStatusError(resp.StatusCode, message)
	e.Type = env.Type
	e.Param = env.Param
	e.Code = env.Code
	return e
}

// ErrorEnvelope holds the fields of {"error": {...}} that a server may send.
type ErrorEnvelope struct {
	Message string
	Type    string
	Param   string
	Code    string
}

// ExtractErrorEnvelope reads body and pulls the error envelope fields out
// of it. Unreadable or non-JSON bodies yield the zero envelope.
func ExtractErrorEnvelope(body io.Reader) ErrorEnvelope {
	if body == nil {
		return ErrorEnvelope{}
	}

	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 || !gjson.ValidBytes(data) {
		return ErrorEnvelope{}
	}

	errObj := gjson.GetBytes(data, "error")
	if !errObj.IsObject() {
		return ErrorEnvelope{}
	}

	var env ErrorEnvelope
	if m := errObj.Get("message"); m.Type == gjson.String {
		env.Message = m.String()
	}
	env.Type = errObj.Get("type").String()
	env.Param = errObj.Get("param").String()
	// code is a string for OpenAI and a number for some gateways.
	env.Code = errObj.Get("code").String()
	return env
}

// MapNetworkError converts a failure where no response was received into a
// Timeout or Connection error. Errors that are already *api.Error pass
// through unchanged.
func MapNetworkError(ctx context.Context, err error) *api.Error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if isTimeout(ctx, err) {
		return api.NewTimeoutError("", err)
	}
	return api.NewConnectionError("", err)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if ctx != nil && errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
