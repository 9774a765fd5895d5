// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"os"
	"reflect"
	"strconv"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"
	"github.com/tidwall/gjson"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/subfish/subfish/internal/attrs"
	"github.com/subfish/subfish/internal/config"
	"github.com/subfish/subfish/internal/filters"
	"github.com/subfish/subfish/internal/log"
)

// Formats accepted by --output.
var Formats = []string{"text", "json", "yaml", "raw"}

// Options shape one rendering. Header and Footer frame text output.
type Options struct {
	Format  string
	Filter  string
	Sort    string
	Titles  bool
	Color   bool
	Local   bool
	Padding int
	Header  string
	Footer  string
}

// OptionsFromCommand reads the output flags of cmd. Flags cmd does not
// define read as their zero value.
func OptionsFromCommand(cmd *cli.Command) Options {
	opts := Options{
		Format:  cmd.String("output"),
		Filter:  cmd.String("filter"),
		Sort:    cmd.String("sort"),
		Titles:  cmd.Bool("titles"),
		Color:   cmd.Bool("color"),
		Local:   cmd.Bool("local"),
		Padding: int(cmd.Int("padding")),
	}
	if h, ok := cmd.Metadata["header"].(string); ok {
		opts.Header = h
	}
	if f, ok := cmd.Metadata["footer"].(string); ok {
		opts.Footer = f
	}
	return opts
}

// InterfaceToString renders a row value for a table cell. Zero values render
// as emptyValue, "" by default.
func InterfaceToString(value any, emptyValue ...string) string {
	if len(emptyValue) == 0 {
		emptyValue = []string{""}
	}

	if value == nil || reflect.ValueOf(value).IsZero() {
		return emptyValue[0]
	}

	switch value := value.(type) {
	case string:
		return value
	case int:
		return strconv.Itoa(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(b)
	}
}

// SliceDiceSpit filters the JSON array raw down to the rows matching
// opts.Filter, projects them onto al, applies the attr transforms, sorts
// them and renders them to w in opts.Format. postProcess, when given, sees
// the final rows of text output before they are tabled. Raw output writes
// raw untouched.
func SliceDiceSpit(raw []byte,
	al attrs.AttrList,
	opts Options,
	w io.Writer,
	postProcess func([]map[string]any) error) error {

	if w == nil {
		w = os.Stdout
	}

	if opts.Format == "raw" {
		_, err := w.Write(raw)
		return err
	}

	rows := filters.FilterDataset(gjson.ParseBytes(raw), al, opts.Filter)

	if opts.Local {
		for i := range al {
			al[i].TransformSpec += "t"
		}
	}

	for _, row := range rows {
		for _, attr := range al {
			if attr.TransformSpec != "" {
				row[attr.OutputKey] = attr.Transform(row[attr.OutputKey])
			}
		}
	}

	SortDataset(rows, opts.Sort)

	switch opts.Format {
	case "json":
		b, err := json.Marshal(project(rows, al))
		if err != nil {
			return fmt.Errorf("failed to render json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "yaml":
		b, err := yaml.Marshal(project(rows, al))
		if err != nil {
			return fmt.Errorf("failed to render yaml: %w", err)
		}
		_, err = w.Write(b)
		return err
	default:
		if postProcess != nil {
			if err := postProcess(rows); err != nil {
				return err
			}
		}
		TableWriter(rows, al, opts, w)
		return nil
	}
}

// project drops the hidden attrs from rows.
func project(rows []map[string]any, al attrs.AttrList) []map[string]any {
	visible := al.Visible()
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		p := make(map[string]any, len(visible))
		for _, attr := range visible {
			p[attr.OutputKey] = row[attr.OutputKey]
		}
		out = append(out, p)
	}
	return out
}

// TableWriter renders rows as a borderless table of the visible attrs.
// Nothing is written for no rows.
func TableWriter(rows []map[string]any, al attrs.AttrList, opts Options, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}

	if len(rows) == 0 {
		return
	}

	var (
		headerStyle  = lipgloss.NewStyle().Align(lipgloss.Left).Bold(true)
		cellStyle    = lipgloss.NewStyle().Padding(0, 0).Align(lipgloss.Left)
		evenRowStyle = cellStyle
		oddRowStyle  = cellStyle
	)

	if opts.Color {
		headerColor, evenColor, oddColor := getColors("colors")
		headerStyle = headerStyle.Foreground(headerColor)
		evenRowStyle = evenRowStyle.Foreground(evenColor)
		oddRowStyle = oddRowStyle.Foreground(oddColor)
	}

	visible := al.Visible()

	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		cell := make([]string, 0, len(visible))
		for _, attr := range visible {
			cell = append(cell, InterfaceToString(row[attr.OutputKey], "-"))
		}
		cells = append(cells, cell)
	}

	if opts.Header != "" {
		fmt.Fprintln(w, headerStyle.Render(opts.Header))
	}

	pad := opts.Padding
	if pad == 0 {
		pad = 2
	}
	t := table.New().
		BorderBottom(false).
		BorderTop(false).
		BorderLeft(false).
		BorderRight(false).
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			var style lipgloss.Style
			switch {
			case row == table.HeaderRow:
				style = headerStyle
			case row%2 == 0:
				style = evenRowStyle
			default:
				style = oddRowStyle
			}
			if col > 0 {
				style = style.PaddingLeft(pad)
			}
			return style
		}).
		Rows(cells...)

	if opts.Titles {
		headers := make([]string, 0, len(visible))
		for _, attr := range visible {
			headers = append(headers, attr.OutputKey)
		}
		// https://github.com/charmbracelet/lipgloss/issues/261
		t = t.Headers(headers...).BorderHeader(false)
	}
	fmt.Fprintln(w, t)

	if opts.Footer != "" {
		fmt.Fprintln(w, headerStyle.Render(opts.Footer))
	}
}

// getColors returns the title, even and odd row colors. colors.title,
// colors.even and colors.odd in the user config win; otherwise the defaults
// suit the terminal background.
func getColors(key string) (header, even, odd color.Color) {
	isDark := lipgloss.HasDarkBackground(os.Stdin, os.Stdout)

	resolve := func(key string, light string, dark string) color.Color {
		if c, err := config.GetString(key); err == nil {
			return lipgloss.Color(c)
		}
		if isDark {
			return lipgloss.Color(dark)
		}
		return lipgloss.Color(light)
	}

	header = resolve(key+".title", "#b08800", "#f6be00")
	even = resolve(key+".even", "#333333", "#ffffff")
	odd = resolve(key+".odd", "#0088a0", "#00c8f0")
	log.Tracef("colors resolved: dark=%v", isDark)
	return
}
