package pagepatch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// DecodeSections reads sections from r. The body may be a single JSON
// object, a JSON array, or a stream of objects separated by whitespace
// (newline-delimited JSON). An empty body yields no sections.
func DecodeSections(body io.Reader) ([]Section, error) {
	br := bufio.NewReader(body)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var sections []Section
		if err := dec.Decode(&sections); err != nil {
			return nil, err
		}
		return sections, nil
	}

	var sections []Section
	for {
		var sec Section
		if err := dec.Decode(&sec); err != nil {
			if errors.Is(err, io.EOF) {
				return sections, nil
			}
			return nil, err
		}
		sections = append(sections, sec)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsAny(b, " \t\r\n") {
			return b[0], nil
		}
		if _, err := br.Discard(1); err != nil {
			return 0, err
		}
	}
}
