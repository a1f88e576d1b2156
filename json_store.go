package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// JSONStore keeps the catalogue in a single JSON object keyed by title.
// Every call reads the whole file; every mutation rewrites it.
type JSONStore struct {
	path   string
	logger *zap.Logger
}

func NewJSONStore(path string, logger *zap.Logger) *JSONStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONStore{path: path, logger: logger}
}

// jsonRecord is the on-disk value for one title.
type jsonRecord struct {
	Year     flexInt   `json:"year"`
	Rating   flexFloat `json:"rating"`
	Poster   string    `json:"poster"`
	Language string    `json:"language,omitempty"`
	Country  string    `json:"country,omitempty"`
	Awards   string    `json:"awards,omitempty"`
	IMDbID   string    `json:"imdbID,omitempty"`
	Note     *string   `json:"note"`
}

func (r jsonRecord) movie(title string) Movie {
	m := Movie{
		Title:    title,
		Year:     int(r.Year),
		Rating:   float64(r.Rating),
		Poster:   r.Poster,
		Language: r.Language,
		Country:  r.Country,
		Awards:   r.Awards,
		IMDbID:   r.IMDbID,
	}
	if r.Note != nil {
		m.Note = *r.Note
	}
	return m
}

func newJSONRecord(m Movie) jsonRecord {
	r := jsonRecord{
		Year:     flexInt(m.Year),
		Rating:   flexFloat(m.Rating),
		Poster:   m.Poster,
		Language: m.Language,
		Country:  m.Country,
		Awards:   m.Awards,
		IMDbID:   m.IMDbID,
	}
	if m.Note != "" {
		note := m.Note
		r.Note = &note
	}
	return r
}

// flexInt decodes a JSON number or a numeric string.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s, err := unquoteNumber(b)
	if err != nil || s == "" {
		return err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return fmt.Errorf("invalid integer %s", b)
		}
		v = int(f)
	}
	*n = flexInt(v)
	return nil
}

// flexFloat decodes a JSON number or a numeric string.
type flexFloat float64

func (n *flexFloat) UnmarshalJSON(b []byte) error {
	s, err := unquoteNumber(b)
	if err != nil || s == "" {
		return err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s", b)
	}
	*n = flexFloat(v)
	return nil
}

func unquoteNumber(b []byte) (string, error) {
	if string(b) == "null" {
		return "", nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	return string(b), nil
}

func (s *JSONStore) Exists(title string) bool {
	return s.load().Has(title)
}

func (s *JSONStore) List() *Catalogue {
	return s.load()
}

func (s *JSONStore) Add(m Movie) error {
	cat := s.load()
	cat.Put(m)
	return s.save(cat)
}

func (s *JSONStore) Delete(title string) error {
	cat := s.load()
	if !cat.Remove(title) {
		return nil
	}
	return s.save(cat)
}

func (s *JSONStore) Update(title string, u MovieUpdate) error {
	if u.IsEmpty() {
		return nil
	}
	cat := s.load()
	m, ok := cat.Get(title)
	if !ok {
		return nil
	}
	cat.Put(u.Apply(m))
	return s.save(cat)
}

func (s *JSONStore) Close() error { return nil }

// load never fails: a missing file and a corrupt document both give an empty
// catalogue, the latter with a warning.
func (s *JSONStore) load() *Catalogue {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("catalogue file not found, starting empty", zap.String("path", s.path))
		} else {
			s.logger.Warn("cannot read catalogue file", zap.String("path", s.path), zap.Error(err))
		}
		return NewCatalogue()
	}

	cat, err := decodeJSONCatalogue(data, s.logger.With(zap.String("path", s.path)))
	if err != nil {
		s.logger.Warn("malformed JSON catalogue, treating as empty", zap.String("path", s.path), zap.Error(err))
		return NewCatalogue()
	}
	return cat
}

func (s *JSONStore) save(cat *Catalogue) error {
	data, err := encodeJSONCatalogue(cat)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// decodeJSONCatalogue walks the top-level object token by token so titles
// keep their file order. A syntax error fails the whole document; an entry
// that is not an object or has unconvertible values is skipped with a warning.
func decodeJSONCatalogue(data []byte, logger *zap.Logger) (*Catalogue, error) {
	cat := NewCatalogue()
	if len(bytes.TrimSpace(data)) == 0 {
		return cat, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("top-level value is not an object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		title, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if title == "" {
			logger.Warn("skipping entry with empty title")
			continue
		}
		if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
			logger.Warn("skipping malformed entry", zap.String("title", title), zap.String("value", string(raw)))
			continue
		}
		var rec jsonRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			logger.Warn("skipping malformed entry", zap.String("title", title), zap.Error(err))
			continue
		}
		cat.Put(rec.movie(title))
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after catalogue object")
	}
	return cat, nil
}

// encodeJSONCatalogue writes the catalogue as a pretty-printed object in
// catalogue order.
func encodeJSONCatalogue(cat *Catalogue) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range cat.Movies() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(m.Title)
		if err != nil {
			return nil, err
		}
		val, err := marshalNoEscape(newJSONRecord(m))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "    "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func marshalNoEscape(v interface{}) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}
