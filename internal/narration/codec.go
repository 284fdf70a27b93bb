package narration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/ivlev/pdf2lecture/internal/apperr"
)

// Wire format (JSON objects are ordered, so keys are read as a stream):
//
//	[ { "<page>": { "<region>": [pageImage, crop, transcript,
//	      { "<heading>": [[summary, audioRef, duration, translated, [markers...]], ...] } ] } } ]

// Decode reads a narration document in the tuple wire format.
// Malformed input is reported as an apperr.InputError.
func Decode(r io.Reader) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.Input("read narration", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Input("decode narration", err)
	}
	return doc, nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var pages []json.RawMessage
	if err := json.Unmarshal(data, &pages); err != nil {
		return fmt.Errorf("document: %w", err)
	}

	var doc Document
	for i, raw := range pages {
		err := eachKey(raw, func(name string, value json.RawMessage) error {
			page := Page{Name: name}
			err := eachKey(value, func(regionName string, tuple json.RawMessage) error {
				region, err := decodeRegion(regionName, tuple)
				if err != nil {
					return err
				}
				page.Regions = append(page.Regions, region)
				return nil
			})
			if err != nil {
				return fmt.Errorf("page %q: %w", name, err)
			}
			doc = append(doc, page)
			return nil
		})
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	*d = doc
	return nil
}

func decodeRegion(name string, data json.RawMessage) (Region, error) {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return Region{}, fmt.Errorf("region %q: %w", name, err)
	}
	if len(tuple) < 4 {
		return Region{}, fmt.Errorf("region %q: expected 4 fields, got %d", name, len(tuple))
	}

	region := Region{Name: name}
	fields := []*string{&region.PageImage, &region.Crop, &region.Transcript}
	for i, dst := range fields {
		if err := decodeString(tuple[i], dst); err != nil {
			return Region{}, fmt.Errorf("region %q field %d: %w", name, i, err)
		}
	}

	err := eachKey(tuple[3], func(label string, value json.RawMessage) error {
		var rawParts []json.RawMessage
		if err := json.Unmarshal(value, &rawParts); err != nil {
			return fmt.Errorf("heading %q: %w", label, err)
		}
		heading := Heading{Label: label}
		for j, rp := range rawParts {
			part, err := decodePart(rp)
			if err != nil {
				return fmt.Errorf("heading %q part %d: %w", label, j, err)
			}
			heading.Parts = append(heading.Parts, part)
		}
		region.Headings = append(region.Headings, heading)
		return nil
	})
	if err != nil {
		return Region{}, fmt.Errorf("region %q: %w", name, err)
	}
	return region, nil
}

func decodePart(data json.RawMessage) (Part, error) {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return Part{}, err
	}
	if len(tuple) < 3 {
		return Part{}, fmt.Errorf("expected at least 3 fields, got %d", len(tuple))
	}

	var p Part
	if err := decodeString(tuple[0], &p.Summary); err != nil {
		return Part{}, fmt.Errorf("summary: %w", err)
	}
	if err := decodeString(tuple[1], &p.AudioRef); err != nil {
		return Part{}, fmt.Errorf("audio ref: %w", err)
	}
	dur, err := decodeNumber(tuple[2])
	if err != nil {
		return Part{}, fmt.Errorf("duration: %w", err)
	}
	p.Duration = dur
	if len(tuple) > 3 {
		if err := decodeString(tuple[3], &p.Translated); err != nil {
			return Part{}, fmt.Errorf("translated text: %w", err)
		}
	}
	if len(tuple) > 4 && !isNull(tuple[4]) {
		if err := json.Unmarshal(tuple[4], &p.Markers); err != nil {
			return Part{}, fmt.Errorf("markers: %w", err)
		}
	}
	return p, nil
}

// eachKey walks a JSON object in document order.
func eachKey(data json.RawMessage, fn func(key string, value json.RawMessage) error) error {
	if isNull(data) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

func decodeString(data json.RawMessage, dst *string) error {
	if isNull(data) {
		*dst = ""
		return nil
	}
	return json.Unmarshal(data, dst)
}

// decodeNumber accepts JSON numbers and numeric strings.
func decodeNumber(data json.RawMessage) (float64, error) {
	if isNull(data) {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

func isNull(data json.RawMessage) bool {
	return len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null"
}

// MarshalJSON writes the document back in the tuple wire format, one page
// per array element, preserving every ordering.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, page := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		writeKey(&buf, page.Name)
		buf.WriteByte('{')
		for j, r := range page.Regions {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeKey(&buf, r.Name)
			head, err := json.Marshal([]string{r.PageImage, r.Crop, r.Transcript})
			if err != nil {
				return nil, err
			}
			buf.Write(head[:len(head)-1])
			buf.WriteString(",{")
			for k, h := range r.Headings {
				if k > 0 {
					buf.WriteByte(',')
				}
				writeKey(&buf, h.Label)
				parts := make([][]any, 0, len(h.Parts))
				for _, p := range h.Parts {
					markers := p.Markers
					if markers == nil {
						markers = []string{}
					}
					parts = append(parts, []any{p.Summary, p.AudioRef, p.Duration, p.Translated, markers})
				}
				encoded, err := json.Marshal(parts)
				if err != nil {
					return nil, err
				}
				buf.Write(encoded)
			}
			buf.WriteString("}]")
		}
		buf.WriteString("}}")
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) {
	k, _ := json.Marshal(key)
	buf.Write(k)
	buf.WriteByte(':')
}
