package ingest

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/trialmatch/go-match-engine/internal/errors"
)

// XLSXSource reads a patient roster from an Excel workbook. The first sheet
// carries the data with the same logical columns as the CSV export.
type XLSXSource struct {
	path string
}

// NewXLSXSource creates a roster source over the workbook at path.
func NewXLSXSource(path string) *XLSXSource {
	return &XLSXSource{path: path}
}

func (s *XLSXSource) Name() string { return "xlsx:" + s.path }

func (s *XLSXSource) Read(ctx context.Context) ([]RosterRow, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, errors.NewIngestError(s.Name(), err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.NewIngestError(s.Name(), fmt.Errorf("workbook has no sheets"))
	}

	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.NewIngestError(s.Name(), err)
	}
	if len(cells) == 0 {
		return nil, errors.NewIngestError(s.Name(), fmt.Errorf("sheet %q is empty", sheet))
	}

	cm := resolveColumns(cells[0])
	if !cm.hasPatientID() {
		return nil, errors.NewIngestError(s.Name(), fmt.Errorf("no PATIENT_ID column in header"))
	}

	rows := make([]RosterRow, 0, len(cells)-1)
	for i := 1; i < len(cells); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows = append(rows, rowFromRecord(cells[i], cm))
	}
	return rows, nil
}
