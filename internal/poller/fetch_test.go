package poller

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
)

type staticFetcher Response

func (f staticFetcher) Fetch(context.Context, Request) Response { return Response(f) }

func TestFetch_Classification(t *testing.T) {
	transportErr := &TransportError{Op: "request failed", Err: errors.New("connection refused")}

	tests := []struct {
		name       string
		resp       Response
		parse      ParseFunc
		wantOK     bool
		wantReason string
		check      func(t *testing.T, err error)
	}{
		{
			name:   "success",
			resp:   Response{StatusCode: http.StatusOK, Body: []byte(`ok`)},
			parse:  rawParse,
			wantOK: true,
		},
		{
			name:       "transport failure",
			resp:       Response{Error: transportErr},
			parse:      rawParse,
			wantReason: "request failed: connection refused",
			check: func(t *testing.T, err error) {
				var te *TransportError
				if !errors.As(err, &te) {
					t.Errorf("error %T, want *TransportError", err)
				}
			},
		},
		{
			name:       "status with server message",
			resp:       Response{StatusCode: http.StatusInternalServerError, Body: []byte(`{"message":"server error"}`)},
			parse:      rawParse,
			wantReason: "server error",
			check: func(t *testing.T, err error) {
				var se *StatusError
				if !errors.As(err, &se) {
					t.Fatalf("error %T, want *StatusError", err)
				}
				if se.Code != http.StatusInternalServerError {
					t.Errorf("Code = %d, want 500", se.Code)
				}
			},
		},
		{
			name:       "status without message falls back to status text",
			resp:       Response{StatusCode: http.StatusNotFound, Body: []byte(`<html>nope</html>`)},
			parse:      rawParse,
			wantReason: "Not Found",
		},
		{
			name:       "redirect is not success",
			resp:       Response{StatusCode: http.StatusFound},
			parse:      rawParse,
			wantReason: "Found",
		},
		{
			name:  "parse rejects body",
			resp:  Response{StatusCode: http.StatusOK, Body: []byte(`{`)},
			parse: func([]byte) (any, error) { return nil, errors.New("unexpected end of JSON input") },
			check: func(t *testing.T, err error) {
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Errorf("error %T, want *ParseError", err)
				}
			},
			wantReason: "parse response: unexpected end of JSON input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := TaskInfo{Name: "signals", Parse: tt.parse}
			outcome, resp := Fetch(context.Background(), staticFetcher(tt.resp), info, nil)

			if outcome.OK() != tt.wantOK {
				t.Fatalf("OK() = %v, want %v (err: %v)", outcome.OK(), tt.wantOK, outcome.Err)
			}
			if outcome.Reason() != tt.wantReason {
				t.Errorf("Reason() = %q, want %q", outcome.Reason(), tt.wantReason)
			}
			if resp.StatusCode != tt.resp.StatusCode {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, tt.resp.StatusCode)
			}
			if tt.check != nil {
				tt.check(t, outcome.Err)
			}
		})
	}
}

func TestFetch_ParsePanicRecovered(t *testing.T) {
	var gotStage, gotID string
	var gotPanic any

	info := TaskInfo{
		Name:  "signals",
		Parse: func([]byte) (any, error) { panic("boom") },
	}
	outcome, _ := Fetch(context.Background(), staticFetcher{StatusCode: http.StatusOK, Body: []byte(`{}`)}, info,
		func(stage, id string, r any) {
			gotStage = stage
			gotID = id
			gotPanic = r
		})

	if outcome.OK() {
		t.Fatal("expected failure after parse panic")
	}
	var pe *ParseError
	if !errors.As(outcome.Err, &pe) {
		t.Fatalf("error %T, want *ParseError", outcome.Err)
	}
	if gotID == "" || !strings.Contains(outcome.Reason(), gotID) {
		t.Errorf("reason %q should carry correlation id %q", outcome.Reason(), gotID)
	}
	if gotPanic != "boom" || gotStage != "parse" {
		t.Errorf("recovered = %v at %q, want boom at parse", gotPanic, gotStage)
	}
}

type panicFetcher struct{}

func (panicFetcher) Fetch(context.Context, Request) Response { panic("transport boom") }

func TestFetch_FetcherPanicRecovered(t *testing.T) {
	var gotStage, gotID string

	info := TaskInfo{Name: "signals", Parse: rawParse}
	outcome, resp := Fetch(context.Background(), panicFetcher{}, info,
		func(stage, id string, r any) {
			gotStage = stage
			gotID = id
		})

	if outcome.OK() {
		t.Fatal("expected failure after fetcher panic")
	}
	var te *TransportError
	if !errors.As(outcome.Err, &te) {
		t.Fatalf("error %T, want *TransportError", outcome.Err)
	}
	if te.Op != "fetch panic" {
		t.Errorf("op = %q, want fetch panic", te.Op)
	}
	if gotStage != "fetch" || gotID == "" || !strings.Contains(outcome.Reason(), gotID) {
		t.Errorf("stage %q, reason %q, correlation id %q", gotStage, outcome.Reason(), gotID)
	}
	if !strings.Contains(outcome.Reason(), "transport boom") {
		t.Errorf("reason %q should carry the panic value", outcome.Reason())
	}
	if resp.StatusCode != 0 || resp.Body != nil {
		t.Errorf("response = %+v, want empty", resp)
	}
}

func TestOutcome(t *testing.T) {
	ok := Success(42)
	if !ok.OK() || ok.Reason() != "" || ok.Payload != 42 {
		t.Errorf("Success(42) = %+v", ok)
	}

	failed := Failure(errors.New("nope"))
	if failed.OK() || failed.Reason() != "nope" {
		t.Errorf("Failure(nope) = %+v", failed)
	}
}
