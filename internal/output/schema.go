// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/subfish/subfish/internal/log"
)

// DumpSchema writes the sorted json field names of typ, the keys usable in
// --attrs, --filter and --sort, one per line. If w is nil, os.Stdout is used.
func DumpSchema(typ reflect.Type, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}

	fmt.Fprintln(w, "Attributes available to --attrs, --filter and --sort:")
	fmt.Fprintln(w, "")

	names := schemaNames(typ)
	if len(names) == 0 {
		log.Debugf("no json fields found for type: %s", typ.Name())
		return
	}

	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
}

// schemaNames returns the json names of the exported fields of typ.
func schemaNames(typ reflect.Type) []string {
	for typ.Kind() == reflect.Ptr || typ.Kind() == reflect.Slice {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil
	}

	var names []string
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = field.Name
		}
		names = append(names, name)
	}
	return names
}
