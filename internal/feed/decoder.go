// Package feed turns raw venue frames into orderbook updates.
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/orderbook"
)

var (
	// ErrMalformedFrame is returned for frames that cannot be turned into an
	// update. It matches orderbook.ErrMalformedUpdate under errors.Is.
	ErrMalformedFrame = fmt.Errorf("feed: malformed frame: %w", orderbook.ErrMalformedUpdate)
	// ErrControlFrame marks subscription acks, venue events and keepalives.
	ErrControlFrame = errors.New("feed: control frame")
)

// Format names a venue frame layout.
type Format string

const (
	// FormatOKX is the OKX v5 "books" channel: snapshot then seqId/prevSeqId linked updates.
	FormatOKX Format = "okx"
	// FormatGoMarket is the GoMarket L2 relay where every frame is a full book.
	FormatGoMarket Format = "gomarket"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatOKX, FormatGoMarket:
		return f, nil
	default:
		return "", fmt.Errorf("feed: unknown format %q", s)
	}
}

// Decoder is stateless; Decode may be called from any goroutine.
type Decoder struct {
	format Format
}

func NewDecoder(format Format) (*Decoder, error) {
	f, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}
	return &Decoder{format: f}, nil
}

func (d *Decoder) Format() Format { return d.format }

// Decode parses one frame. Control frames return ErrControlFrame, everything
// that is not a well-formed update returns an error wrapping ErrMalformedFrame.
func (d *Decoder) Decode(raw []byte) (orderbook.Update, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return orderbook.Update{}, fmt.Errorf("%w: empty", ErrMalformedFrame)
	}
	if string(raw) == "pong" {
		return orderbook.Update{}, fmt.Errorf("%w: pong", ErrControlFrame)
	}
	if d.format == FormatGoMarket {
		return decodeGoMarket(raw)
	}
	return decodeOKX(raw)
}

// rawLevel accepts both ["px","sz",...] and [px,sz]; trailing venue fields are ignored.
type rawLevel []decimal.Decimal

func levels(side string, raw []rawLevel) ([]orderbook.Level, error) {
	out := make([]orderbook.Level, 0, len(raw))
	for i, l := range raw {
		if len(l) < 2 {
			return nil, fmt.Errorf("%w: %s[%d] has %d fields", ErrMalformedFrame, side, i, len(l))
		}
		out = append(out, orderbook.Level{Price: l[0], Size: l[1]})
	}
	return out, nil
}

type okxFrame struct {
	Event  string          `json:"event"`
	Code   string          `json:"code"`
	Msg    string          `json:"msg"`
	Action string          `json:"action"`
	Data   []okxBook       `json:"data"`
	Arg    json.RawMessage `json:"arg"`
}

type okxBook struct {
	Asks      []rawLevel `json:"asks"`
	Bids      []rawLevel `json:"bids"`
	Ts        string     `json:"ts"`
	SeqID     *int64     `json:"seqId"`
	PrevSeqID *int64     `json:"prevSeqId"`
}

func decodeOKX(raw []byte) (orderbook.Update, error) {
	var f okxFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return orderbook.Update{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Event != "" {
		if f.Event == "error" {
			return orderbook.Update{}, fmt.Errorf("%w: error %s: %s", ErrControlFrame, f.Code, f.Msg)
		}
		return orderbook.Update{}, fmt.Errorf("%w: %s", ErrControlFrame, f.Event)
	}
	if len(f.Data) != 1 {
		return orderbook.Update{}, fmt.Errorf("%w: expected one book, got %d", ErrMalformedFrame, len(f.Data))
	}
	b := f.Data[0]
	if b.SeqID == nil || *b.SeqID < 0 {
		return orderbook.Update{}, fmt.Errorf("%w: missing seqId", ErrMalformedFrame)
	}
	ts, err := parseMillis(b.Ts)
	if err != nil {
		return orderbook.Update{}, err
	}
	bids, err := levels("bids", b.Bids)
	if err != nil {
		return orderbook.Update{}, err
	}
	asks, err := levels("asks", b.Asks)
	if err != nil {
		return orderbook.Update{}, err
	}
	seq := uint64(*b.SeqID)

	switch f.Action {
	case "snapshot":
		return orderbook.NewSnapshot(seq, ts, bids, asks), nil
	case "update":
		if b.PrevSeqID == nil || *b.PrevSeqID < 0 {
			return orderbook.Update{}, fmt.Errorf("%w: update without prevSeqId", ErrMalformedFrame)
		}
		changes := make([]orderbook.Change, 0, len(bids)+len(asks))
		for _, l := range bids {
			changes = append(changes, orderbook.Change{Side: orderbook.Bid, Price: l.Price, Size: l.Size})
		}
		for _, l := range asks {
			changes = append(changes, orderbook.Change{Side: orderbook.Ask, Price: l.Price, Size: l.Size})
		}
		return orderbook.NewDelta(seq, ts, changes...).WithPrev(uint64(*b.PrevSeqID)), nil
	default:
		return orderbook.Update{}, fmt.Errorf("%w: action %q", ErrMalformedFrame, f.Action)
	}
}

type goMarketFrame struct {
	Timestamp string     `json:"timestamp"`
	Exchange  string     `json:"exchange"`
	Symbol    string     `json:"symbol"`
	Asks      []rawLevel `json:"asks"`
	Bids      []rawLevel `json:"bids"`
}

// decodeGoMarket treats every frame as a full book. The relay has no sequence
// ids, so the frame time in milliseconds stands in for one.
func decodeGoMarket(raw []byte) (orderbook.Update, error) {
	var f goMarketFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return orderbook.Update{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Asks == nil && f.Bids == nil {
		return orderbook.Update{}, fmt.Errorf("%w: no book sides", ErrMalformedFrame)
	}
	var ts time.Time
	if f.Timestamp != "" {
		t, err := time.Parse(time.RFC3339Nano, f.Timestamp)
		if err != nil {
			return orderbook.Update{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedFrame, err)
		}
		ts = t
	}
	bids, err := levels("bids", f.Bids)
	if err != nil {
		return orderbook.Update{}, err
	}
	asks, err := levels("asks", f.Asks)
	if err != nil {
		return orderbook.Update{}, err
	}
	var seq uint64
	if !ts.IsZero() && ts.UnixMilli() > 0 {
		seq = uint64(ts.UnixMilli())
	}
	return orderbook.NewSnapshot(seq, ts, bids, asks), nil
}

func parseMillis(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: ts %q", ErrMalformedFrame, s)
	}
	return time.UnixMilli(ms), nil
}
