package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/orderbook"
)

func mustDecoder(t *testing.T, f Format) *Decoder {
	t.Helper()
	d, err := NewDecoder(f)
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	return d
}

func TestDecodeOKXSnapshot(t *testing.T) {
	raw := `{"arg":{"channel":"books","instId":"BTC-USDT-SWAP"},"action":"snapshot","data":[{
		"asks":[["101","5","0","2"],["102","20","0","4"]],
		"bids":[["100","10","0","1"]],
		"ts":"1700000000123","checksum":0,"seqId":500,"prevSeqId":-1}]}`
	u, err := mustDecoder(t, FormatOKX).Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Kind != orderbook.KindSnapshot || u.Seq != 500 || u.HasPrev {
		t.Fatalf("unexpected header: %+v", u)
	}
	if len(u.Asks) != 2 || len(u.Bids) != 1 {
		t.Fatalf("levels: %d asks, %d bids", len(u.Asks), len(u.Bids))
	}
	if !u.Asks[1].Price.Equal(decimal.NewFromInt(102)) || !u.Asks[1].Size.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("ask[1] = %+v", u.Asks[1])
	}
	if !u.Timestamp.Equal(time.UnixMilli(1700000000123)) {
		t.Fatalf("ts = %v", u.Timestamp)
	}
}

func TestDecodeOKXUpdate(t *testing.T) {
	raw := `{"arg":{"channel":"books","instId":"BTC-USDT-SWAP"},"action":"update","data":[{
		"asks":[["101","0","0","0"]],
		"bids":[["100.5","3","0","1"]],
		"ts":"1700000000200","seqId":517,"prevSeqId":500}]}`
	u, err := mustDecoder(t, FormatOKX).Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Kind != orderbook.KindDelta || u.Seq != 517 || !u.HasPrev || u.PrevSeq != 500 {
		t.Fatalf("unexpected header: %+v", u)
	}
	if len(u.Changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(u.Changes))
	}
	if u.Changes[0].Side != orderbook.Bid || u.Changes[1].Side != orderbook.Ask || !u.Changes[1].Size.IsZero() {
		t.Fatalf("changes = %+v", u.Changes)
	}
}

func TestDecodeOKXControlFrames(t *testing.T) {
	d := mustDecoder(t, FormatOKX)
	for _, raw := range []string{
		"pong",
		`{"event":"subscribe","arg":{"channel":"books","instId":"BTC-USDT-SWAP"},"connId":"a4d3ae55"}`,
		`{"event":"error","code":"60012","msg":"Invalid request"}`,
	} {
		if _, err := d.Decode([]byte(raw)); !errors.Is(err, ErrControlFrame) {
			t.Errorf("%s: err = %v, want ErrControlFrame", raw, err)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	d := mustDecoder(t, FormatOKX)
	cases := map[string]string{
		"not json":       `{"action":`,
		"empty":          ``,
		"no data":        `{"action":"update","data":[]}`,
		"missing seq":    `{"action":"snapshot","data":[{"asks":[],"bids":[]}]}`,
		"update no prev": `{"action":"update","data":[{"asks":[],"bids":[],"seqId":3}]}`,
		"short level":    `{"action":"snapshot","data":[{"asks":[["101"]],"bids":[],"seqId":3}]}`,
		"bad number":     `{"action":"snapshot","data":[{"asks":[["abc","1"]],"bids":[],"seqId":3}]}`,
		"bad ts":         `{"action":"snapshot","data":[{"asks":[],"bids":[],"ts":"x","seqId":3}]}`,
		"unknown action": `{"action":"replace","data":[{"asks":[],"bids":[],"seqId":3}]}`,
	}
	for name, raw := range cases {
		_, err := d.Decode([]byte(raw))
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("%s: err = %v, want ErrMalformedFrame", name, err)
		}
		if !errors.Is(err, orderbook.ErrMalformedUpdate) {
			t.Errorf("%s: err = %v does not match orderbook.ErrMalformedUpdate", name, err)
		}
	}
}

func TestDecodeGoMarket(t *testing.T) {
	raw := `{"timestamp":"2025-05-04T10:39:13Z","exchange":"OKX","symbol":"BTC-USDT-SWAP",
		"asks":[["95445.5","9.06"],["95448","2.05"]],
		"bids":[["95445.4","1104.23"]]}`
	u, err := mustDecoder(t, FormatGoMarket).Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Kind != orderbook.KindSnapshot {
		t.Fatalf("kind = %s, want snapshot", u.Kind)
	}
	want := time.Date(2025, 5, 4, 10, 39, 13, 0, time.UTC)
	if !u.Timestamp.Equal(want) || u.Seq != uint64(want.UnixMilli()) {
		t.Fatalf("ts/seq = %v/%d", u.Timestamp, u.Seq)
	}
	if len(u.Asks) != 2 || !u.Bids[0].Size.Equal(decimal.RequireFromString("1104.23")) {
		t.Fatalf("levels = %+v / %+v", u.Asks, u.Bids)
	}
}

func TestDecodedFramesApplyToStore(t *testing.T) {
	d := mustDecoder(t, FormatOKX)
	s := orderbook.NewStore()
	frames := []string{
		`{"action":"snapshot","data":[{"asks":[["101","5"]],"bids":[["100","10"]],"ts":"1","seqId":10,"prevSeqId":-1}]}`,
		`{"action":"update","data":[{"asks":[["101","7"]],"bids":[],"ts":"2","seqId":12,"prevSeqId":10}]}`,
		`{"action":"update","data":[{"asks":[],"bids":[],"ts":"3","seqId":12,"prevSeqId":12}]}`,
	}
	for i, f := range frames {
		u, err := d.Decode([]byte(f))
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if err := s.Apply(u); err != nil {
			t.Fatalf("apply frame %d: %v", i, err)
		}
	}
	ask, _ := s.BestAsk()
	if !ask.Size.Equal(decimal.NewFromInt(7)) || s.Seq() != 12 {
		t.Fatalf("ask = %+v seq = %d", ask, s.Seq())
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(" OKX "); err != nil || f != FormatOKX {
		t.Fatalf("ParseFormat = %q, %v", f, err)
	}
	if _, err := ParseFormat("binance"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
