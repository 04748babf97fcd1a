package signalsync

import (
	"context"
	"net/http"
	"time"

	"github.com/miicoin/signalsync/internal/poller"
)

// Transport types. A [Fetcher] is anything that can perform one request;
// the default is a pooled HTTP client.
type (
	Fetcher  = poller.Fetcher
	Request  = poller.Request
	Response = poller.Response
)

// NewHTTPFetcher returns the pooled HTTP [Fetcher] used by default. jar may
// be nil; pass the jar shared with whatever establishes the session.
func NewHTTPFetcher(jar http.CookieJar) *poller.Client {
	return poller.NewClient(jar)
}

// Fetch performs one cycle of ep against baseURL without a synchronizer:
// one request, status check, parse. It never panics; a panicking parse
// becomes a *ParseError.
func Fetch[T any](ctx context.Context, f Fetcher, baseURL string, ep Endpoint[T]) Result[T] {
	info, err := taskInfo(baseURL, ep, 0, nil)
	if err != nil {
		return Failure[T](&TransportError{Op: "create request", Err: err})
	}

	outcome, _ := poller.Fetch(ctx, f, info, nil)
	return toResult[T](outcome)
}

func toResult[T any](o poller.Outcome) Result[T] {
	if !o.OK() {
		return Failure[T](o.Err)
	}
	payload, _ := o.Payload.(T)
	return Success(payload)
}

// taskInfo erases the payload type of ep and sink for the engine. sink may be
// nil for one-off fetches.
func taskInfo[T any](baseURL string, ep Endpoint[T], interval time.Duration, sink Sink[T]) (poller.TaskInfo, error) {
	url, err := resolveURL(baseURL, ep.path)
	if err != nil {
		return poller.TaskInfo{}, err
	}

	parse := ep.parse
	info := poller.TaskInfo{
		Name: ep.name,
		Request: poller.Request{
			Method:  ep.method,
			URL:     url,
			Headers: copyMap(ep.headers),
			Body:    ep.Body(),
			Timeout: ep.timeout,
		},
		Interval: interval,
		Parse: func(body []byte) (any, error) {
			return parse(body)
		},
	}

	if sink != nil {
		info.Targets = targetsOf(sink)
		info.Render = func(payload any) {
			typed, _ := payload.(T)
			sink.Render(typed)
		}
	}
	return info, nil
}
