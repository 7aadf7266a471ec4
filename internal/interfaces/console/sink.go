package console

import (
	"fmt"
	"io"
	"os"
	"sort"

	"coinbook/internal/application/port"
	"coinbook/internal/domain/model"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const timeLayout = "2006-01-02 15:04:05"

// Sink renders ledger state as tables.
type Sink struct {
	out io.Writer
}

// NewSink writes to out, or stdout if out is nil.
func NewSink(out io.Writer) *Sink {
	if out == nil {
		out = os.Stdout
	}
	return &Sink{out: out}
}

func (s *Sink) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(s.out)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

func (s *Sink) WriteBalance(sheet *model.BalanceSheet) error {
	t := s.newTable(fmt.Sprintf("BALANCE %s", displayNamespace(sheet.Namespace)))
	t.AppendHeader(table.Row{"Position", "Currency", "Amount", "Value (" + sheet.Base + ")"})
	for _, p := range sheet.Positions {
		t.AppendRow(table.Row{p.ID, p.Currency, p.Amount.String(), p.Value.String()})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"funds", sheet.Base, sheet.Funds.String(), sheet.Funds.String()})
	t.AppendFooter(table.Row{"", "", "total", sheet.Total.String()})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	t.Render()
	_, err := fmt.Fprintf(s.out, "as of %s\n\n", sheet.At.Format(timeLayout))
	return err
}

func (s *Sink) WritePositions(namespace string, positions []model.Position) error {
	sorted := make([]model.Position, len(positions))
	copy(sorted, positions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OpenTimestamp < sorted[j].OpenTimestamp })

	t := s.newTable(fmt.Sprintf("POSITIONS %s", displayNamespace(namespace)))
	t.AppendHeader(table.Row{"ID", "Currency", "Amount", "Opened"})
	for _, p := range sorted {
		t.AppendRow(table.Row{p.ID, p.Currency, p.Amount.String(), p.OpenTimestamp})
	}
	t.AppendFooter(table.Row{"", "", "count", len(sorted)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
	})
	t.Render()
	_, err := fmt.Fprintln(s.out)
	return err
}

func (s *Sink) WriteCycle(report *model.CycleReport) error {
	t := s.newTable(fmt.Sprintf("CYCLE %s %s", report.Kind, report.ID))
	t.AppendRows([]table.Row{
		{"Namespace", displayNamespace(report.Namespace)},
		{"Started", report.StartedAt.Format(timeLayout)},
		{"Took", report.EndedAt.Sub(report.StartedAt).String()},
		{"Evaluated", report.Evaluated},
		{"Opened", len(report.Opened)},
		{"Closed", len(report.Closed)},
		{"Canceled", report.Canceled},
	})
	if len(report.Failures) > 0 {
		t.AppendSeparator()
		for _, f := range report.Failures {
			msg := ""
			if f.Err != nil {
				msg = f.Err.Error()
			}
			t.AppendRow(table.Row{fmt.Sprintf("%s/%s", f.Stage, f.Item), fmt.Sprintf("[%s] %s", f.Kind, msg)})
		}
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 12, Align: text.AlignLeft},
		{Number: 2, WidthMax: 80, Align: text.AlignLeft},
	})
	t.Render()
	_, err := fmt.Fprintln(s.out)
	return err
}

func displayNamespace(ns string) string {
	if ns == "" {
		return "(default)"
	}
	return ns
}

var _ port.Sink = (*Sink)(nil)
