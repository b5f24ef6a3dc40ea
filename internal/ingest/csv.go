package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/trialmatch/go-match-engine/index"
	"github.com/trialmatch/go-match-engine/internal/errors"
)

// CSVSource reads a patient roster from a CSV export.
type CSVSource struct {
	path string
}

// NewCSVSource creates a roster source over the CSV file at path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) Name() string { return "csv:" + s.path }

// Read parses the whole file. Ragged rows are tolerated; a missing
// PATIENT_ID column fails the read because nothing downstream can key rows.
func (s *CSVSource) Read(ctx context.Context) ([]RosterRow, error) {
	file, err := os.Open(s.path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, errors.NewIngestError(s.Name(), err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // roster exports are ragged
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.NewIngestError(s.Name(), fmt.Errorf("reading header: %w", err))
	}
	cm := resolveColumns(header)
	if !cm.hasPatientID() {
		return nil, errors.NewIngestError(s.Name(), fmt.Errorf("no PATIENT_ID column in header"))
	}

	var rows []RosterRow
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewIngestError(s.Name(), err)
		}
		rows = append(rows, rowFromRecord(record, cm))
	}
	return rows, nil
}

// LoadGazetteer reads a zip gazetteer CSV of `zip,lat,lon` rows into a
// coordinate index. A header row is detected by its unparseable latitude and
// skipped. Rows with malformed coordinates are dropped; the count of dropped
// rows is returned for the caller to log.
func LoadGazetteer(path string) (*index.CoordinateIndex, int, error) {
	file, err := os.Open(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, 0, errors.NewIngestError("gazetteer:"+path, err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	coords := index.NewCoordinateIndex()
	dropped := 0
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, errors.NewIngestError("gazetteer:"+path, err)
		}
		if len(record) < 3 {
			dropped++
			continue
		}
		lat, latErr := strconv.ParseFloat(record[1], 64)
		lon, lonErr := strconv.ParseFloat(record[2], 64)
		if latErr != nil || lonErr != nil {
			if first {
				first = false
				continue // header row
			}
			dropped++
			continue
		}
		first = false
		coords.Add(record[0], lat, lon)
	}
	return coords, dropped, nil
}
