// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package testreport turns `go test -json` output into a report grouped by
// the annotation block above each test function.
package testreport

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// Annotation is the metadata parsed from a test's doc comment.
type Annotation struct {
	Name     string `json:"name"`
	Package  string `json:"package"`
	Category string `json:"category"`
	Purpose  string `json:"purpose,omitempty"`
	Scope    string `json:"scope,omitempty"`
	Security string `json:"security,omitempty"`
	Expected string `json:"expected,omitempty"`
}

var annotationKeys = []string{"TestPurpose:", "Scope:", "Security:", "Expected:"}

// Categories lists report sections in display order.
var Categories = []string{"Scopes", "Claims", "Consent", "OAuth2", "OIDC", "Identity", "Storage", "HTTP API", "Other"}

// ModulePath reads the module path from the go.mod in root.
func ModulePath(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}
	mod := modfile.ModulePath(data)
	if mod == "" {
		return "", fmt.Errorf("go.mod in %s has no module directive", root)
	}
	return mod, nil
}

// Scan parses every _test.go file under root and returns annotations keyed
// by "<import path>.<TestName>".
func Scan(root string) (map[string]Annotation, error) {
	mod, err := ModulePath(root)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Annotation)
	fset := token.NewFileSet()
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if p != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(p, "_test.go") {
			return nil
		}

		file, err := parser.ParseFile(fset, p, nil, parser.ParseComments)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", p, err)
		}
		rel, err := filepath.Rel(root, filepath.Dir(p))
		if err != nil {
			return err
		}
		pkg := mod
		if rel != "." {
			pkg = path.Join(mod, filepath.ToSlash(rel))
		}

		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv != nil || !strings.HasPrefix(fn.Name.Name, "Test") || fn.Name.Name == "TestMain" {
				continue
			}
			a := Annotation{
				Name:     fn.Name.Name,
				Package:  pkg,
				Category: Category(strings.TrimPrefix(pkg, mod+"/")),
			}
			parseDoc(fn.Doc, &a)
			out[pkg+"."+a.Name] = a
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// parseDoc fills a from the doc comment. Continuation lines without a key
// extend the previous field.
func parseDoc(doc *ast.CommentGroup, a *Annotation) {
	if doc == nil {
		return
	}
	var current *string
	for _, c := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
		matched := false
		for _, key := range annotationKeys {
			if !strings.HasPrefix(text, key) {
				continue
			}
			switch key {
			case "TestPurpose:":
				current = &a.Purpose
			case "Scope:":
				current = &a.Scope
			case "Security:":
				current = &a.Security
			case "Expected:":
				current = &a.Expected
			}
			*current = strings.TrimSpace(strings.TrimPrefix(text, key))
			matched = true
			break
		}
		if !matched && current != nil && text != "" {
			*current += " " + text
		}
	}
}

// Category maps a module-relative package directory to a report section.
func Category(rel string) string {
	switch {
	case strings.HasPrefix(rel, "internal/clientscope"):
		return "Scopes"
	case strings.HasPrefix(rel, "internal/mapper"):
		return "Claims"
	case strings.HasPrefix(rel, "internal/consent"):
		return "Consent"
	case strings.HasPrefix(rel, "internal/oauth2"):
		return "OAuth2"
	case strings.HasPrefix(rel, "internal/oidc"):
		return "OIDC"
	case strings.HasPrefix(rel, "internal/identity"), strings.HasPrefix(rel, "internal/authz"), strings.HasPrefix(rel, "internal/session"):
		return "Identity"
	case strings.HasPrefix(rel, "internal/store"), strings.HasPrefix(rel, "internal/bootstrap"):
		return "Storage"
	case strings.HasPrefix(rel, "internal/transport/http"):
		return "HTTP API"
	}
	return "Other"
}
