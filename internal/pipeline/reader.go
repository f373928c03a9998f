package pipeline

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/otri/internal/atom"
)

// ReadValues reads candidate atom values from r. The input may be a single
// JSON object, a JSON array of objects, or a stream of objects such as
// JSON lines.
func ReadValues(r io.Reader) ([]atom.Object, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []atom.Object{}, nil
		}
		return nil, err
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()

	if first == '[' {
		var raws []json.RawMessage
		if err := dec.Decode(&raws); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return nil, errors.New("unexpected data after JSON array")
		}
		out := make([]atom.Object, 0, len(raws))
		for i, raw := range raws {
			obj, err := atom.DecodeObject(raw)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, obj)
		}
		return out, nil
	}

	out := []atom.Object{}
	for i := 0; ; i++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		obj, err := atom.DecodeObject(raw)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out = append(out, obj)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
