package google

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
)

// retryInfo is the part of a Google error body that carries a retry hint.
type retryInfo struct {
	Error struct {
		Details []struct {
			Type       string            `json:"@type"`
			Reason     string            `json:"reason"`
			Metadata   map[string]string `json:"metadata"`
			RetryDelay string            `json:"retryDelay"` // e.g. "3.5s"
		} `json:"details"`
	} `json:"error"`
}

// RetryDelay extracts how long Google asked the caller to wait from a
// rate-limit error: the Retry-After header first, then a retryDelay in
// the error details. It returns 0 when there is no hint.
func RetryDelay(err error) time.Duration {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return 0
	}

	if v := gerr.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			return time.Until(t)
		}
	}

	if gerr.Body == "" {
		return 0
	}
	var info retryInfo
	if err := json.Unmarshal([]byte(gerr.Body), &info); err != nil {
		return 0
	}
	for _, detail := range info.Error.Details {
		if d, err := time.ParseDuration(detail.RetryDelay); err == nil {
			return d
		}
		if delay, ok := detail.Metadata["retryDelay"]; ok {
			if d, err := time.ParseDuration(delay); err == nil {
				return d
			}
		}
	}
	return 0
}
