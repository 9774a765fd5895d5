// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/subfish/subfish/internal/log"
)

// Directories beneath the config dir that hold templates.
const (
	LaunchTemplates   = "launch_templates"
	SGAuthorizations  = "sg_authorizations"
	UserData          = "user_data"
	AssumePolicies    = "assume_policies"
	RolePolicies      = "role_policies"
	BlueprintFileName = "blueprint.yaml"
)

// suffixes are tried in order when resolving a template name.
var suffixes = []string{".json.tmpl", ".json"}

var nameRegex = regexp.MustCompile(`^([\w-]+)\.json(\.tmpl)?$`)

// ErrNoTemplate is returned when no file exists for a template name.
var ErrNoTemplate = errors.New("no template")

// Renderer renders JSON documents from files under a config dir. Files ending
// in .tmpl are Go templates with the sprig function library plus userData.
type Renderer struct {
	Dir  string
	Vars map[string]any
}

// New returns a Renderer rooted at dir.
func New(dir string, vars map[string]any) *Renderer {
	if vars == nil {
		vars = map[string]any{}
	}
	return &Renderer{Dir: dir, Vars: vars}
}

// Path returns the file backing subdir/name, or ErrNoTemplate.
func (r *Renderer) Path(subdir, name string) (string, error) {
	for _, suffix := range suffixes {
		p := filepath.Join(r.Dir, subdir, name+suffix)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s/%s: %w", subdir, name, ErrNoTemplate)
}

// Exists reports whether subdir/name resolves to a file.
func (r *Renderer) Exists(subdir, name string) bool {
	_, err := r.Path(subdir, name)
	return err == nil
}

// Names lists template names in subdir, sorted. A missing subdir has none.
func (r *Renderer) Names(subdir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.Dir, subdir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if m := nameRegex.FindStringSubmatch(e.Name()); m != nil && !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names, nil
}

// Text renders subdir/name and returns the result. extra vars override the
// Renderer's vars.
func (r *Renderer) Text(subdir, name string, extra map[string]any) ([]byte, error) {
	p, err := r.Path(subdir, name)
	if err != nil {
		return nil, err
	}
	return r.file(p, r.merge(extra))
}

// JSON renders subdir/name and decodes the result into out.
func (r *Renderer) JSON(subdir, name string, extra map[string]any, out any) error {
	text, err := r.Text(subdir, name, extra)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(text, out); err != nil {
		return fmt.Errorf("%s/%s: rendered document is not valid JSON: %w", subdir, name, err)
	}
	return nil
}

func (r *Renderer) merge(extra map[string]any) map[string]any {
	vars := make(map[string]any, len(r.Vars)+len(extra))
	for k, v := range r.Vars {
		vars[k] = v
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

func (r *Renderer) file(path string, vars map[string]any) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) != ".tmpl" {
		return raw, nil
	}

	funcs := sprig.TxtFuncMap()
	funcs["userData"] = func(file string) (string, error) {
		return r.userData(file, vars)
	}

	tmpl, err := template.New(filepath.Base(path)).
		Option("missingkey=error").
		Funcs(funcs).
		Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", path, err)
	}
	log.Tracef("rendered %s: %s", path, buf.String())
	return buf.Bytes(), nil
}

// userData returns user_data/<file> base64 encoded, rendering it first when
// the file is a template.
func (r *Renderer) userData(file string, vars map[string]any) (string, error) {
	p := filepath.Join(r.Dir, UserData, file)
	raw, err := r.file(p, vars)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
