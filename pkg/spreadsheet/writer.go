package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/shunichi-ikebuchi/splitwise-export/pkg/pathutil"
	"github.com/shunichi-ikebuchi/splitwise-export/pkg/splitwise"
)

// SheetName is the worksheet XLSX exports are written to; excelize.NewFile
// creates it.
const SheetName = "Sheet1"

// Write exports one row per expense, in input order, to outputPath. The
// format follows the file suffix: ".csv" (any case) writes CSV, anything else
// writes an XLSX workbook. receipts maps expense ID to the local receipt path.
// It returns the number of rows written, excluding the header.
func Write(outputPath string, expenses []splitwise.Expense, receipts map[int64]string) (int, error) {
	format := FormatFor(outputPath)

	rows := make([]Row, 0, len(expenses))
	for _, exp := range expenses {
		rows = append(rows, BuildRow(exp, receipts[exp.ID], format))
	}

	if err := pathutil.EnsureParentDir(outputPath); err != nil {
		return 0, err
	}

	var err error
	if format == FormatCSV {
		err = writeCSV(outputPath, rows)
	} else {
		err = writeXLSX(outputPath, rows)
	}
	if err != nil {
		return 0, err
	}

	return len(rows), nil
}

func writeCSV(outputPath string, rows []Row) (err error) {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", outputPath, closeErr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row.CSVRecord()); err != nil {
			return fmt.Errorf("failed to write row for expense %d: %w", row.ExpenseID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", outputPath, err)
	}

	return nil
}

func writeXLSX(outputPath string, rows []Row) (err error) {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := setRow(f, 1, header); err != nil {
		return err
	}

	for i, row := range rows {
		if err := setRow(f, i+2, row.XLSXValues()); err != nil {
			return fmt.Errorf("failed to write row for expense %d: %w", row.ExpenseID, err)
		}
	}

	// SaveAs rejects suffixes other than .xlsx and friends; any non-CSV
	// output path gets a workbook.
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", outputPath, closeErr)
		}
	}()

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to save %s: %w", outputPath, err)
	}

	return nil
}

func setRow(f *excelize.File, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return f.SetSheetRow(SheetName, cell, &values)
}
