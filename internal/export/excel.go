// Package export writes booking reports as Excel workbooks.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tablebook/internal/model"
)

// Columns of every day sheet.
var Columns = []string{
	"Booking ID", "Start", "End", "Party", "Tables", "Status", "Source",
	"Customer", "Phone", "Email", "Special requests", "Notes",
}

// Workbook accumulates sheets in an excelize file.
type Workbook struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func NewWorkbook() *Workbook {
	return &Workbook{file: excelize.NewFile()}
}

// AddSheet adds a new sheet with the given name.
func (w *Workbook) AddSheet(name string) error {
	// Excel limit.
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else {
		if _, err := w.file.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes bold column headers to the current sheet.
func (w *Workbook) WriteHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.WriteRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	return nil
}

// WriteRow writes a data row to the current sheet.
func (w *Workbook) WriteRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}

	w.currentRow++
	return nil
}

func (w *Workbook) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

func (w *Workbook) Close() error {
	return w.file.Close()
}

// WriteBookings writes bookings to wr, one sheet per venue-local date in the order
// they are given. An empty list still yields a workbook with a header-only sheet.
func WriteBookings(wr io.Writer, bookings []model.Booking, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	wb := NewWorkbook()
	defer wb.Close()

	if len(bookings) == 0 {
		if err := wb.AddSheet("Bookings"); err != nil {
			return err
		}
		if err := wb.WriteHeader(Columns); err != nil {
			return err
		}
		return wb.Save(wr)
	}

	current := ""
	for _, b := range bookings {
		day := b.Start.In(loc).Format("2006-01-02")
		if day != current {
			if err := wb.AddSheet(day); err != nil {
				return err
			}
			if err := wb.WriteHeader(Columns); err != nil {
				return err
			}
			current = day
		}
		if err := wb.WriteRow(bookingRow(b, loc)); err != nil {
			return fmt.Errorf("write booking %s: %w", b.ID, err)
		}
	}

	return wb.Save(wr)
}

func bookingRow(b model.Booking, loc *time.Location) []any {
	return []any{
		b.ID,
		b.Start.In(loc).Format("15:04"),
		b.End.In(loc).Format("15:04"),
		b.PartySize,
		strings.Join(b.TableIDs, ", "),
		string(b.Status),
		string(b.Source),
		b.Customer.Name,
		b.Customer.Phone,
		b.Customer.Email,
		b.SpecialRequests,
		b.Notes,
	}
}

// Filename builds the download name for a date range.
func Filename(from, to time.Time) string {
	return fmt.Sprintf("bookings_%s_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
}
