package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonathan/job-monitor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	name      string
	err       error
	panicVal  any
	block     bool // wait for ctx
	ignoreCtx time.Duration
	calls     atomic.Int32
	got       []types.Posting
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Notify(ctx context.Context, postings []types.Posting) error {
	f.calls.Add(1)
	f.got = postings
	if f.panicVal != nil {
		panic(f.panicVal)
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.ignoreCtx > 0 {
		time.Sleep(f.ignoreCtx)
	}
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func samplePostings(n int) []types.Posting {
	out := make([]types.Posting, n)
	for i := range out {
		p := SamplePosting()
		p.ExternalID = string(rune('a' + i))
		out[i] = p
	}
	return out
}

func TestFanout_EmptyBatchIsNoop(t *testing.T) {
	sink := &fakeSink{name: "a"}
	f := NewFanout(FanoutOptions{Logger: discardLogger()}, sink)

	report := f.Notify(context.Background(), nil)
	assert.False(t, report.Attempted())
	assert.False(t, report.OK())
	assert.Equal(t, int32(0), sink.calls.Load())
}

func TestFanout_FailingSinkDoesNotStopOthers(t *testing.T) {
	first := &fakeSink{name: "first", err: errors.New("smtp down")}
	second := &fakeSink{name: "second", panicVal: "boom"}
	third := &fakeSink{name: "third"}
	f := NewFanout(FanoutOptions{Logger: discardLogger()}, first, second, third)

	postings := samplePostings(2)
	report := f.Notify(context.Background(), postings)

	assert.True(t, report.OK())
	assert.Equal(t, []string{"third"}, report.Delivered)
	require.Len(t, report.Failed, 2)
	assert.Contains(t, report.Failed["first"], "smtp down")
	assert.Contains(t, report.Failed["second"], "panicked")
	for _, s := range []*fakeSink{first, second, third} {
		assert.Equal(t, int32(1), s.calls.Load(), s.name)
	}
	assert.Equal(t, postings, third.got)
}

func TestFanout_AllFail(t *testing.T) {
	f := NewFanout(FanoutOptions{Logger: discardLogger()}, &fakeSink{name: "a", err: errors.New("x")})
	report := f.Notify(context.Background(), samplePostings(1))
	assert.True(t, report.Attempted())
	assert.False(t, report.OK())
}

func TestFanout_TimeoutBoundsEachSink(t *testing.T) {
	slow := &fakeSink{name: "slow", block: true}
	stuck := &fakeSink{name: "stuck", ignoreCtx: 500 * time.Millisecond}
	fast := &fakeSink{name: "fast"}
	f := NewFanout(FanoutOptions{Timeout: 20 * time.Millisecond, Logger: discardLogger()}, slow, stuck, fast)

	start := time.Now()
	report := f.Notify(context.Background(), samplePostings(1))

	assert.Less(t, time.Since(start), 400*time.Millisecond, "a sink ignoring its context is abandoned")
	assert.Equal(t, []string{"fast"}, report.Delivered)
	assert.Contains(t, report.Failed["slow"], "deadline exceeded")
	assert.Contains(t, report.Failed["stuck"], "deadline exceeded")
}

func TestFanout_Names(t *testing.T) {
	f := NewFanout(FanoutOptions{}, &fakeSink{name: "console"}, &fakeSink{name: "email"})
	assert.Equal(t, []string{"console", "email"}, f.Names())
}
