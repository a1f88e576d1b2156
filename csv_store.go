package main

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// csvHeader is the canonical column order written on every rewrite.
var csvHeader = []string{"title", "year", "rating", "poster", "language", "country", "awards", "imdbID", "note"}

// Columns every row must carry; the rest are optional so files from older
// layouts still load.
var csvRequired = []string{"title", "year", "rating", "poster"}

// CSVStore keeps the catalogue as one header row plus one row per movie.
// Malformed rows are skipped individually.
type CSVStore struct {
	path   string
	logger *zap.Logger
}

func NewCSVStore(path string, logger *zap.Logger) *CSVStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVStore{path: path, logger: logger}
}

func (s *CSVStore) Exists(title string) bool {
	return s.load().Has(title)
}

func (s *CSVStore) List() *Catalogue {
	return s.load()
}

func (s *CSVStore) Add(m Movie) error {
	cat := s.load()
	cat.Put(m)
	return s.save(cat)
}

func (s *CSVStore) Delete(title string) error {
	cat := s.load()
	if !cat.Remove(title) {
		return nil
	}
	return s.save(cat)
}

func (s *CSVStore) Update(title string, u MovieUpdate) error {
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

func (s *CSVStore) Close() error { return nil }

func (s *CSVStore) load() *Catalogue {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("catalogue file not found, starting empty", zap.String("path", s.path))
		} else {
			s.logger.Warn("cannot read catalogue file", zap.String("path", s.path), zap.Error(err))
		}
		return NewCatalogue()
	}
	defer f.Close()

	return decodeCSVCatalogue(f, s.logger.With(zap.String("path", s.path)))
}

func (s *CSVStore) save(cat *Catalogue) error {
	data, err := encodeCSVCatalogue(cat)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// decodeCSVCatalogue reads rows by header name. Header names are matched
// case-insensitively. A row that lacks a required column or carries a bad
// year or rating is logged and skipped; the rest of the file still loads.
func decodeCSVCatalogue(r io.Reader, logger *zap.Logger) *Catalogue {
	cat := NewCatalogue()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			logger.Warn("cannot read CSV header", zap.Error(err))
		}
		return cat
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	if _, ok := cols["title"]; !ok {
		logger.Warn("CSV header has no title column", zap.Strings("header", header))
		return cat
	}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				logger.Warn("skipping unparsable CSV line", zap.Int("line", perr.Line), zap.Error(err))
				continue
			}
			logger.Warn("stopped reading CSV file", zap.Error(err))
			break
		}
		line, _ := cr.FieldPos(0)

		m, err := csvRowMovie(record, cols)
		if errors.Is(err, errEmptyTitle) {
			continue
		}
		if err != nil {
			logger.Warn("skipping malformed CSV row", zap.Int("line", line), zap.Strings("row", record), zap.Error(err))
			continue
		}
		cat.Put(m)
	}
	return cat
}

var errEmptyTitle = errors.New("empty title")

func csvRowMovie(record []string, cols map[string]int) (Movie, error) {
	field := func(name string) (string, bool) {
		i, ok := cols[strings.ToLower(name)]
		if !ok || i >= len(record) {
			return "", false
		}
		return record[i], true
	}

	title, ok := field("title")
	if !ok || strings.TrimSpace(title) == "" {
		return Movie{}, errEmptyTitle
	}
	for _, name := range csvRequired[1:] {
		if _, ok := field(name); !ok {
			return Movie{}, fmt.Errorf("missing expected column %q", name)
		}
	}

	yearText, _ := field("year")
	year, err := strconv.Atoi(strings.TrimSpace(yearText))
	if err != nil {
		return Movie{}, fmt.Errorf("year: %w", err)
	}
	ratingText, _ := field("rating")
	rating, err := strconv.ParseFloat(strings.TrimSpace(ratingText), 64)
	if err != nil {
		return Movie{}, fmt.Errorf("rating: %w", err)
	}

	m := Movie{Title: title, Year: year, Rating: rating}
	m.Poster, _ = field("poster")
	m.Language, _ = field("language")
	m.Country, _ = field("country")
	m.Awards, _ = field("awards")
	m.IMDbID, _ = field("imdbID")
	m.Note, _ = field("note")
	return m, nil
}

// encodeCSVCatalogue re-serializes every field of every record.
func encodeCSVCatalogue(cat *Catalogue) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, m := range cat.Movies() {
		row := []string{
			m.Title,
			strconv.Itoa(m.Year),
			strconv.FormatFloat(m.Rating, 'f', -1, 64),
			m.Poster,
			m.Language,
			m.Country,
			m.Awards,
			m.IMDbID,
			m.Note,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
