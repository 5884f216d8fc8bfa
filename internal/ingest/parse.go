// Package ingest reads entity lists from uploaded files.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"previa/internal/domain"
	"previa/internal/ports"
)

var (
	ErrUnsupportedFile = errors.New("only CSV and XLSX files are supported")
	ErrNoEntities      = errors.New("no valid entities found in file")
	ErrMissingColumns  = errors.New("missing required columns")
)

var requiredColumns = []string{"rfc", "razon_social"}

// ParseUpload reads the entity rows of an uploaded file. Only CSV is read
// locally; spreadsheets are accepted by the remote screening service.
func ParseUpload(up ports.Upload) ([]domain.EntityInput, error) {
	if !domain.AcceptedUpload(up.Filename) {
		return nil, ErrUnsupportedFile
	}
	if strings.ToLower(filepath.Ext(up.Filename)) != ".csv" {
		return nil, fmt.Errorf("%w: spreadsheets need the remote screening service", ErrUnsupportedFile)
	}
	return ParseCSV(bytes.NewReader(up.Data))
}

// ParseCSV reads rows with at least rfc and razon_social columns. Column names
// are matched case-insensitively; rows missing a required value are skipped.
func ParseCSV(r io.Reader) ([]domain.EntityInput, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoEntities
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	get := func(row []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []domain.EntityInput
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		in := domain.EntityInput{
			RFC:        strings.ToUpper(get(row, "rfc")),
			Name:       get(row, "razon_social"),
			PersonType: strings.ToLower(get(row, "tipo_persona")),
			Relation:   strings.ToLower(get(row, "relacion")),
			InternalID: get(row, "id_interno"),
		}
		if in.RFC == "" || in.Name == "" {
			continue
		}
		out = append(out, in)
	}
	if len(out) == 0 {
		return nil, ErrNoEntities
	}
	return out, nil
}
