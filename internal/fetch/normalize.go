package fetch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnexpectedShape reports a body that is neither a list nor a results envelope.
var ErrUnexpectedShape = errors.New("fetch: unexpected response shape")

// Row is one undecoded item of a list response.
type Row = json.RawMessage

// Shape tells which of the accepted layouts a response used.
type Shape int

const (
	ShapeList Shape = iota + 1
	ShapeEnvelope
)

// Page is a response normalized to a single layout.
type Page struct {
	Shape    Shape
	Items    []Row
	Count    int
	Next     *string
	Previous *string
}

type envelope struct {
	Results  *[]Row  `json:"results"`
	Count    *int    `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

// Normalize accepts either a bare JSON list or a {results, count, next,
// previous} envelope. A list reports its length as count and no links.
func Normalize(body []byte) (Page, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Page{}, ErrUnexpectedShape
	}
	switch trimmed[0] {
	case '[':
		var items []Row
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Page{}, fmt.Errorf("%w: %w", ErrUnexpectedShape, err)
		}
		if items == nil {
			items = []Row{}
		}
		return Page{Shape: ShapeList, Items: items, Count: len(items)}, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return Page{}, fmt.Errorf("%w: %w", ErrUnexpectedShape, err)
		}
		if env.Results == nil {
			return Page{}, fmt.Errorf("%w: object without results", ErrUnexpectedShape)
		}
		items := *env.Results
		if items == nil {
			items = []Row{}
		}
		count := len(items)
		if env.Count != nil {
			count = *env.Count
		}
		return Page{Shape: ShapeEnvelope, Items: items, Count: count, Next: env.Next, Previous: env.Previous}, nil
	}
	return Page{}, ErrUnexpectedShape
}
