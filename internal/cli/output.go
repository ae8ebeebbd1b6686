package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aastar/faucet/internal/xerrors"
)

type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
)

func parseFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", formatTable:
		return formatTable, nil
	case formatJSON:
		return formatJSON, nil
	default:
		return "", xerrors.Newf("unsupported output format: %s (valid formats are table|json)", s)
	}
}

func (a *App) format() (outputFormat, error) {
	return parseFormat(a.v.GetString("output"))
}

// printer writes human status lines and tables, or a single JSON document
// when --output json is set. Status lines go to stderr in JSON mode so stdout
// stays parseable.
type printer struct {
	out    io.Writer
	status io.Writer
	format outputFormat
}

func (a *App) printer() *printer {
	f, _ := a.format()
	p := &printer{out: a.stdout, status: a.stdout, format: f}
	if f == formatJSON {
		p.status = a.stderr
	}
	return p
}

func (p *printer) okf(format string, args ...any) {
	fmt.Fprintf(p.status, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func (p *printer) warnf(format string, args ...any) {
	fmt.Fprintf(p.status, "%s %s\n", color.YellowString("!"), fmt.Sprintf(format, args...))
}

func (p *printer) failf(format string, args ...any) {
	fmt.Fprintf(p.status, "%s %s\n", color.RedString("✗"), fmt.Sprintf(format, args...))
}

func (p *printer) infof(format string, args ...any) {
	fmt.Fprintf(p.status, "%s\n", fmt.Sprintf(format, args...))
}

// emit writes v as JSON in JSON mode, otherwise calls render.
func (p *printer) emit(v any, render func(w io.Writer)) error {
	if p.format == formatJSON {
		return writeJSON(p.out, v)
	}
	render(p.out)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(payload))
	return err
}

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(header)
	return t
}

// fileSink is stdout or a created file.
type fileSink struct {
	writer io.Writer
	close  func() error
}

func openSink(stdout io.Writer, path string) (*fileSink, error) {
	if strings.TrimSpace(path) == "" {
		return &fileSink{writer: stdout, close: func() error { return nil }}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s", path)
	}
	return &fileSink{writer: f, close: f.Close}, nil
}
