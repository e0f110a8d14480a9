package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradesim/internal/costmodel"
)

type fakeRedis struct {
	sets      map[string][]byte
	ttls      map[string]time.Duration
	published map[string][][]byte
	failSet   error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{sets: map[string][]byte{}, ttls: map[string]time.Duration{}, published: map[string][][]byte{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	if f.failSet != nil {
		return redis.NewStatusResult("", f.failSet)
	}
	f.sets[key] = value.([]byte)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.published[channel] = append(f.published[channel], message.([]byte))
	return redis.NewIntResult(1, nil)
}

func sampleEstimate() costmodel.CostEstimate {
	return costmodel.CostEstimate{
		ID:  "abc",
		Seq: 42,
		Params: costmodel.OrderParams{
			QuantityUSD: decimal.NewFromInt(100),
			Volatility:  decimal.RequireFromString("0.3"),
			FeeTier:     "Regular",
			Side:        costmodel.Buy,
		},
		NetCost:  decimal.RequireFromString("0.125"),
		Validity: costmodel.Validity{NetCost: costmodel.Status{OK: true}},
	}
}

func TestRedisSetsAndPublishes(t *testing.T) {
	f := newFakeRedis()
	r := newRedis(f, RedisOptions{Key: "est", Channel: "ests", TTL: time.Minute})
	if err := r.Deliver(context.Background(), sampleEstimate()); err != nil {
		t.Fatal(err)
	}
	if f.ttls["est"] != time.Minute {
		t.Fatalf("ttl = %v", f.ttls["est"])
	}
	var got costmodel.CostEstimate
	if err := json.Unmarshal(f.sets["est"], &got); err != nil {
		t.Fatal(err)
	}
	if got.Seq != 42 || !got.NetCost.Equal(decimal.RequireFromString("0.125")) {
		t.Fatalf("stored = %+v", got)
	}
	if n := len(f.published["ests"]); n != 1 {
		t.Fatalf("published %d messages", n)
	}
}

func TestRedisSkipsDisabledTargets(t *testing.T) {
	f := newFakeRedis()
	r := newRedis(f, RedisOptions{Channel: "ests"})
	if err := r.Deliver(context.Background(), sampleEstimate()); err != nil {
		t.Fatal(err)
	}
	if len(f.sets) != 0 || len(f.published["ests"]) != 1 {
		t.Fatalf("sets=%d published=%d", len(f.sets), len(f.published["ests"]))
	}
}

func TestMultiContinuesPastFailure(t *testing.T) {
	f := newFakeRedis()
	f.failSet = errors.New("connection refused")
	var buf bytes.Buffer
	m := NewMulti(newRedis(f, RedisOptions{Key: "est", Channel: "ests"}), nil, NewLog(zerolog.New(&buf)))

	err := m.Deliver(context.Background(), sampleEstimate())
	if err == nil || !strings.Contains(err.Error(), "redis: set est") {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(buf.String(), `"net_cost":"0.125000"`) {
		t.Fatalf("log sink skipped: %s", buf.String())
	}
}

func TestLogMarksInvalidNetCost(t *testing.T) {
	var buf bytes.Buffer
	est := sampleEstimate()
	est.Validity.NetCost = costmodel.Status{Reason: "costmodel: insufficient depth"}
	if err := NewLog(zerolog.New(&buf)).Deliver(context.Background(), est); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "net_cost_invalid") {
		t.Fatalf("output = %s", buf.String())
	}
}
