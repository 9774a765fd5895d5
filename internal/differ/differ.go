// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package differ

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/subfish/subfish/internal/log"
)

// Identical is written when the documents do not differ.
const Identical = "The states are identical."

// Options shape a diff.
type Options struct {
	// Color renders additions and removals in color.
	Color bool
	// Ignore names top-level keys left out of the comparison.
	Ignore []string
}

// Diff compares the JSON documents before and after and writes the changes
// to w. Empty input is an empty document. It reports whether they differ.
func Diff(w io.Writer, before, after []byte, opts Options) (bool, error) {
	log.Debugf("diff: before=%d after=%d bytes", len(before), len(after))

	left, err := decode(before, opts.Ignore)
	if err != nil {
		return false, fmt.Errorf("failed to read previous state: %w", err)
	}
	right, err := decode(after, opts.Ignore)
	if err != nil {
		return false, fmt.Errorf("failed to read current state: %w", err)
	}

	delta := gojsondiff.New().CompareObjects(left, right)
	if !delta.Modified() {
		fmt.Fprintln(w, Identical)
		return false, nil
	}

	f := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{
		ShowArrayIndex: false,
		Coloring:       opts.Color,
	})
	out, err := f.Format(delta)
	if err != nil {
		return true, fmt.Errorf("failed to format diff: %w", err)
	}
	fmt.Fprint(w, out)
	return true, nil
}

func decode(raw []byte, ignore []string) (map[string]any, error) {
	doc := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for _, key := range ignore {
		delete(doc, key)
	}
	return doc, nil
}
