package payrun

import (
	"io"

	"github.com/gocarina/gocsv"

	"github.com/warp/payroll-sync/payroll"
)

// LineRow is one pay line as a CSV row.
type LineRow struct {
	Date         string `csv:"date"`
	EmployeeID   string `csv:"employee_id"`
	EmployeeName string `csv:"employee_name"`
	JobCode      string `csv:"job_code"`
	Category     string `csv:"category"`
	Leave        bool   `csv:"leave"`
	Minutes      int    `csv:"minutes"`
	Hours        string `csv:"hours"`
	Multiplier   string `csv:"multiplier"`
	BaseRate     string `csv:"base_rate"`
	Cost         string `csv:"cost"`
}

// LineRows flattens pay lines. Amounts keep their decimal text so nothing
// is lost to float formatting.
func LineRows(lines []payroll.PayLine) []LineRow {
	rows := make([]LineRow, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, LineRow{
			Date:         l.Date.String(),
			EmployeeID:   l.EmployeeID,
			EmployeeName: l.EmployeeName,
			JobCode:      l.JobCode,
			Category:     l.Category,
			Leave:        l.IsLeave,
			Minutes:      l.Minutes,
			Hours:        l.Hours().StringFixed(2),
			Multiplier:   l.Multiplier.String(),
			BaseRate:     l.BaseRate.StringFixed(2),
			Cost:         l.Cost.StringFixed(2),
		})
	}
	return rows
}

// WriteLinesCSV writes pay lines with a header row.
func WriteLinesCSV(w io.Writer, lines []payroll.PayLine) error {
	return gocsv.Marshal(LineRows(lines), w)
}
