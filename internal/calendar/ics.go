// Package calendar renders delivery days as an iCalendar file.
package calendar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/vietddude/deliverycal/internal/core/domain"
)

// Defaults for the rendered calendar.
const (
	DefaultSummary   = "Postutdelning 📬"
	DefaultProductID = "-//Postutdelning//SE"
)

// uidNamespace scopes event UIDs so re-runs produce identical UIDs per day.
var uidNamespace = uuid.MustParse("2f1d7b8e-6a51-4f3c-9a0e-5b8c1d4e7f21")

// Config holds calendar rendering settings.
type Config struct {
	Summary   string
	ProductID string
	// Name is shown by clients that honour X-WR-CALNAME.
	Name string
}

// Writer renders and writes calendars.
type Writer struct {
	cfg Config
	now func() time.Time
}

// NewWriter creates a Writer.
func NewWriter(cfg Config) *Writer {
	if cfg.Summary == "" {
		cfg.Summary = DefaultSummary
	}
	if cfg.ProductID == "" {
		cfg.ProductID = DefaultProductID
	}
	return &Writer{cfg: cfg, now: time.Now}
}

// Render builds a calendar with one all-day event per date.
func (w *Writer) Render(postalCode string, dates []domain.Date) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetProductId(w.cfg.ProductID)
	cal.SetMethod(ics.MethodPublish)
	if w.cfg.Name != "" {
		cal.SetXWRCalName(w.cfg.Name)
	}

	stamp := w.now().UTC()
	for _, d := range dates {
		event := cal.AddEvent(EventUID(postalCode, d))
		event.SetDtStampTime(stamp)
		event.SetAllDayStartAt(d.Time())
		event.SetAllDayEndAt(d.AddDays(1).Time())
		event.SetSummary(w.cfg.Summary)
	}
	return cal
}

// Write renders dates and atomically replaces the file at path.
func (w *Writer) Write(path, postalCode string, dates []domain.Date) error {
	if path == "" {
		return errors.New("output path is required")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	data := []byte(w.Render(postalCode, dates).Serialize())

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write calendar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close calendar: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod calendar: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace calendar: %w", err)
	}
	return nil
}

// EventUID returns a stable UID for the delivery event of postalCode on d,
// so calendar clients update events instead of duplicating them.
func EventUID(postalCode string, d domain.Date) string {
	return uuid.NewSHA1(uidNamespace, []byte(postalCode+"/"+d.String())).String() + "@deliverycal"
}
