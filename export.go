package main

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExportCatalogue writes cat to w as json, csv or yaml. JSON and CSV use
// the same layout as the file backends.
func ExportCatalogue(w io.Writer, cat *Catalogue, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		data, err := encodeJSONCatalogue(cat)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "csv":
		data, err := encodeCSVCatalogue(cat)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cat.Movies()); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w %q: use json, csv or yaml", ErrUnsupportedFormat, format)
	}
}

// CopyCatalogue adds every movie of cat to dst and returns how many were
// written. It stops at the first write failure.
func CopyCatalogue(cat *Catalogue, dst Storage) (int, error) {
	n := 0
	for _, m := range cat.Movies() {
		if err := dst.Add(m); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
