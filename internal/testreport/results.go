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

package testreport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Test statuses
const (
	StatusPass   = "pass"
	StatusFail   = "fail"
	StatusSkip   = "skip"
	StatusNotRun = "not run"
)

// Event is one line of `go test -json` output.
type Event struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// Result is the merged outcome of one test.
type Result struct {
	Name        string     `json:"name"`
	Package     string     `json:"package"`
	Status      string     `json:"status"`
	Elapsed     float64    `json:"elapsed_seconds"`
	Failure     string     `json:"failure_reason,omitempty"`
	Annotations Annotation `json:"annotations"`
}

// Summary is the complete report.
type Summary struct {
	GeneratedAt time.Time `json:"generated_at"`
	Total       int       `json:"total"`
	Passed      int       `json:"passed"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Results     []Result  `json:"results"`
}

// Merge folds the event stream into one result per test. Annotated tests
// that never ran are reported as "not run"; subtests inherit the parent's
// annotations.
func Merge(events io.Reader, annotations map[string]Annotation) ([]Result, error) {
	states := make(map[string]*Result, len(annotations))
	for key, a := range annotations {
		states[key] = &Result{Name: a.Name, Package: a.Package, Status: StatusNotRun, Annotations: a}
	}

	scanner := bufio.NewScanner(events)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil || ev.Test == "" {
			continue
		}

		key := ev.Package + "." + ev.Test
		res, ok := states[key]
		if !ok {
			res = &Result{Name: ev.Test, Package: ev.Package, Annotations: inherit(annotations, ev)}
			states[key] = res
		}

		switch ev.Action {
		case "run":
			if res.Status == StatusNotRun {
				res.Status = ""
			}
		case StatusPass, StatusFail:
			res.Status = ev.Action
			res.Elapsed = ev.Elapsed
		case StatusSkip:
			res.Status = StatusSkip
		case "output":
			if res.Status == "" || res.Status == StatusFail {
				res.Failure += ev.Output
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read test events: %w", err)
	}

	out := make([]Result, 0, len(states))
	for _, r := range states {
		if r.Status != StatusFail {
			r.Failure = ""
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Package != out[j].Package {
			return out[i].Package < out[j].Package
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func inherit(annotations map[string]Annotation, ev Event) Annotation {
	a := Annotation{Name: ev.Test, Package: ev.Package, Category: "Other"}
	parent, _, isSub := strings.Cut(ev.Test, "/")
	if !isSub {
		return a
	}
	p, ok := annotations[ev.Package+"."+parent]
	if !ok {
		return a
	}
	p.Name = ev.Test
	return p
}

// Summarize counts results by status.
func Summarize(results []Result, now time.Time) Summary {
	s := Summary{GeneratedAt: now, Results: results}
	for _, r := range results {
		s.Total++
		switch r.Status {
		case StatusPass:
			s.Passed++
		case StatusFail:
			s.Failed++
		case StatusSkip:
			s.Skipped++
		}
	}
	return s
}

// Filter keeps results whose category is in include (when non-empty) and
// not in exclude.
func Filter(results []Result, include, exclude []string) []Result {
	in := toSet(include)
	ex := toSet(exclude)
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if len(in) > 0 {
			if _, ok := in[r.Annotations.Category]; !ok {
				continue
			}
		}
		if _, ok := ex[r.Annotations.Category]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
