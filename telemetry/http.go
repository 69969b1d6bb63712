package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TracedHTTPClient wraps an *http.Client so every outbound call to a remote
// capability (capability.RemoteCapability) carries a span, propagating
// trace context to the far side via the standard W3C headers.
func TracedHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	wrapped := *base
	wrapped.Transport = otelhttp.NewTransport(base.Transport)
	return &wrapped
}
