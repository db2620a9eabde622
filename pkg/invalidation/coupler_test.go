package invalidation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// recordingSink remembers every call.
type recordingSink struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (s *recordingSink) Invalidate(_ context.Context, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]string(nil), tags...))
	return s.err
}

func (s *recordingSink) Calls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestTagHelpers(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{OrderTag("123"), "order-123"},
		{SellerOrdersTag("7"), "seller-orders-7"},
		{SellerDashboardTag("7"), "seller-dashboard-7"},
		{ProductTag("55"), "product-55"},
		{SellerProductsTag("7"), "seller-products-7"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("tag = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestCoupler_FansOutNormalizedTags(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	c := NewCoupler(WithSink("a", a), WithSink("b", b), WithLogger(zerolog.Nop()))

	report := c.Invalidate(context.Background(), "order-1", "", "seller-orders-7", "order-1")

	if !report.OK() {
		t.Fatalf("report failed: %v", report.Failed)
	}
	want := []string{"order-1", "seller-orders-7"}
	for name, sink := range map[string]*recordingSink{"a": a, "b": b} {
		calls := sink.Calls()
		if len(calls) != 1 {
			t.Fatalf("sink %s calls = %d, want 1", name, len(calls))
		}
		if len(calls[0]) != len(want) || calls[0][0] != want[0] || calls[0][1] != want[1] {
			t.Errorf("sink %s tags = %v, want %v", name, calls[0], want)
		}
	}
}

func TestCoupler_NoTagsIsNoop(t *testing.T) {
	sink := &recordingSink{}
	c := NewCoupler(WithSink("s", sink), WithLogger(zerolog.Nop()))

	report := c.Invalidate(context.Background(), "", "")
	if len(report.Tags) != 0 || !report.OK() {
		t.Errorf("report = %+v", report)
	}
	if len(sink.Calls()) != 0 {
		t.Error("sink called without tags")
	}

	var nilCoupler *Coupler
	if r := nilCoupler.Invalidate(context.Background(), "order-1"); !r.OK() {
		t.Error("nil coupler reported a failure")
	}
}

func TestCoupler_FailingSinkDoesNotStopOthers(t *testing.T) {
	failing := &recordingSink{err: errors.New("connection refused")}
	healthy := &recordingSink{}
	c := NewCoupler(WithSink("redis", failing), WithSink("local", healthy), WithLogger(zerolog.Nop()))

	report := c.Invalidate(context.Background(), "order-9")

	if report.OK() {
		t.Fatal("report.OK() = true with a failing sink")
	}
	if _, ok := report.Failed["redis"]; !ok {
		t.Errorf("Failed = %v, want redis entry", report.Failed)
	}
	if _, ok := report.Failed["local"]; ok {
		t.Error("healthy sink reported as failed")
	}
	if len(healthy.Calls()) != 1 {
		t.Error("healthy sink not called after a failure")
	}
}

func TestCoupler_PanickingSink(t *testing.T) {
	c := NewCoupler(
		WithSink("broken", SinkFunc(func(context.Context, []string) error { panic("boom") })),
		WithLogger(zerolog.Nop()),
	)

	report := c.Invalidate(context.Background(), "order-1")
	if err := report.Failed["broken"]; err == nil || err.Error() != "sink panicked: boom" {
		t.Errorf("Failed[broken] = %v", err)
	}
}

func TestCoupler_SinkTimeout(t *testing.T) {
	slow := SinkFunc(func(ctx context.Context, _ []string) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	c := NewCoupler(WithSink("slow", slow), WithTimeout(20*time.Millisecond), WithLogger(zerolog.Nop()))

	start := time.Now()
	report := c.Invalidate(context.Background(), "order-1")

	if !errors.Is(report.Failed["slow"], context.DeadlineExceeded) {
		t.Errorf("Failed[slow] = %v, want deadline exceeded", report.Failed["slow"])
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Invalidate took %v, sink timeout not applied", elapsed)
	}
}

func TestCoupler_CancelledCallerStillInvalidates(t *testing.T) {
	var got context.Context
	sink := SinkFunc(func(ctx context.Context, _ []string) error {
		got = ctx
		return ctx.Err()
	})
	c := NewCoupler(WithSink("s", sink), WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := c.Invalidate(ctx, "order-1")
	if !report.OK() {
		t.Errorf("cancelled caller context aborted invalidation: %v", report.Failed)
	}
	if _, ok := got.Deadline(); !ok {
		t.Error("sink context has no deadline")
	}
}

func TestVersions(t *testing.T) {
	v := NewVersions()
	c := NewCoupler(WithSink("local", v), WithLogger(zerolog.Nop()))

	if v.Version("order-1") != 0 {
		t.Fatal("fresh tag version != 0")
	}

	c.Invalidate(context.Background(), "order-1", "seller-orders-7")
	c.Invalidate(context.Background(), "order-1")

	if got := v.Version("order-1"); got != 2 {
		t.Errorf("Version(order-1) = %d, want 2", got)
	}
	if got := v.Version("seller-orders-7"); got != 1 {
		t.Errorf("Version(seller-orders-7) = %d, want 1", got)
	}
}
