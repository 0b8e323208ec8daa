package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer renders command results as JSON or aligned text.
type printer struct {
	format string
	out    io.Writer
	msg    *message.Printer
}

func newPrinter(opts *RootOptions, out io.Writer) *printer {
	tag, err := language.Parse(opts.Locale)
	if err != nil {
		tag = language.English
	}
	return &printer{format: opts.Format, out: out, msg: message.NewPrinter(tag)}
}

// amount formats money with locale grouping. The float conversion is for
// display only; all arithmetic stays in decimal.
func (p *printer) amount(d decimal.Decimal) string {
	return p.msg.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) table(header []string, rows [][]string, footer ...string) error {
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, line := range append([][]string{header}, rows...) {
		if _, err := fmt.Fprintln(tw, strings.Join(line, "\t")+"\t"); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, line := range footer {
		if _, err := fmt.Fprintln(p.out, line); err != nil {
			return err
		}
	}
	return nil
}
