package google

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{
			name: "retry-after seconds",
			err:  &googleapi.Error{Code: 429, Header: http.Header{"Retry-After": {"7"}}},
			want: 7 * time.Second,
		},
		{
			name: "retry info detail",
			err: &googleapi.Error{Code: 429, Body: `{"error":{"code":429,"details":[
				{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"3.5s"}]}}`},
			want: 3500 * time.Millisecond,
		},
		{
			name: "metadata",
			err: &googleapi.Error{Code: 429, Body: `{"error":{"details":[
				{"reason":"rateLimitExceeded","metadata":{"retryDelay":"2s"}}]}}`},
			want: 2 * time.Second,
		},
		{
			name: "wrapped",
			err:  fmt.Errorf("list files: %w", WrapError(&googleapi.Error{Code: 429, Header: http.Header{"Retry-After": {"1"}}})),
			want: time.Second,
		},
		{name: "no hint", err: &googleapi.Error{Code: 429, Body: `not json`}},
		{name: "not a google error", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RetryDelay(tt.err))
		})
	}
}
