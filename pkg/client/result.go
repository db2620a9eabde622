package client

import (
	"encoding/json"
	"net/http"
	"time"
)

// Success is the data variant of a Result.
type Success[T any] struct {
	Data   T
	Status int

	// Cached is true when Data came from the fallback cache after a timeout.
	Cached bool

	// CachedAt is when the cached response was stored; zero for live data.
	CachedAt time.Time

	// Header holds the live response headers; nil for cached data.
	Header http.Header

	// Tags are the invalidation tags declared on the request.
	Tags []string
}

// Result is the outcome of a gateway call: exactly one of Success or
// Failure is set. Ordinary failures are returned as data, never panicked.
type Result[T any] struct {
	Success *Success[T]
	Failure *Failure
}

// Ok wraps a success.
func Ok[T any](s Success[T]) Result[T] {
	return Result[T]{Success: &s}
}

// Fail wraps a failure.
func Fail[T any](f *Failure) Result[T] {
	return Result[T]{Failure: f}
}

// IsOk reports whether the call succeeded.
func (r Result[T]) IsOk() bool {
	return r.Success != nil
}

// Err returns the failure as an error, or nil on success.
func (r Result[T]) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// Code returns the failure code, or "" on success.
func (r Result[T]) Code() Code {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Code
}

// Value returns the data and whether the call succeeded.
func (r Result[T]) Value() (T, bool) {
	if r.Success == nil {
		var zero T
		return zero, false
	}
	return r.Success.Data, true
}

// decodeResult converts a raw JSON result into a typed one.
func decodeResult[T any](raw Result[json.RawMessage]) Result[T] {
	if raw.Failure != nil {
		return Fail[T](raw.Failure)
	}

	var data T
	if err := json.Unmarshal(raw.Success.Data, &data); err != nil {
		return Fail[T](&Failure{
			Code:    CodeServerError,
			Reason:  ReasonDecode,
			Status:  raw.Success.Status,
			Message: "decode response: " + err.Error(),
		})
	}

	return Ok(Success[T]{
		Data:     data,
		Status:   raw.Success.Status,
		Cached:   raw.Success.Cached,
		CachedAt: raw.Success.CachedAt,
		Header:   raw.Success.Header,
		Tags:     raw.Success.Tags,
	})
}
