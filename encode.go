package tradeledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// EncodeEvents writes events as JSONL, one event per line, in the given order.
func EncodeEvents(w io.Writer, events []Event) error {
	enc := json.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode event %d: %w", e.ID, err)
		}
	}
	return nil
}

// DecodeEvents reads JSONL events. Blank lines are skipped, id and created_at
// are ignored since the store assigns them. Iteration stops after the first
// error.
func DecodeEvents(r io.Reader) iter.Seq2[RawEvent, error] {
	return func(yield func(RawEvent, error) bool) {
		scanner := bufio.NewScanner(r)
		line := 0
		for scanner.Scan() {
			line++
			b := bytes.TrimSpace(scanner.Bytes())
			if len(b) == 0 {
				continue
			}
			var raw RawEvent
			if err := json.Unmarshal(b, &raw); err != nil {
				yield(RawEvent{}, fmt.Errorf("line %d: %w", line, err))
				return
			}
			if !yield(raw, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(RawEvent{}, err)
		}
	}
}
