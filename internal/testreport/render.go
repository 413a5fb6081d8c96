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
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

func statusIcon(status string) string {
	switch status {
	case StatusPass:
		return "✅"
	case StatusFail:
		return "❌"
	case StatusSkip:
		return "⏭️"
	}
	return "⚪"
}

// WriteJSON writes the summary as indented JSON.
func WriteJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteMarkdown renders the summary grouped by category.
func WriteMarkdown(w io.Writer, s Summary, title string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "**Generated:** %s  \n", s.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	status := "✅ PASSED"
	if s.Failed > 0 {
		status = "❌ FAILED"
	}
	fmt.Fprintf(&sb, "**Status:** %s\n\n", status)

	rate := 0.0
	if s.Total > 0 {
		rate = float64(s.Passed) / float64(s.Total) * 100
	}
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Total | Passed | Failed | Skipped | Pass Rate |\n")
	sb.WriteString("|-------|--------|--------|---------|-----------|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d | %.1f%% |\n\n", s.Total, s.Passed, s.Failed, s.Skipped, rate)

	byCategory := make(map[string][]Result)
	for _, r := range s.Results {
		byCategory[r.Annotations.Category] = append(byCategory[r.Annotations.Category], r)
	}

	sb.WriteString("## Results by Category\n\n")
	for _, cat := range Categories {
		results := byCategory[cat]
		if len(results) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "### %s\n\n", cat)
		sb.WriteString("| Test | Status | Purpose | Security |\n")
		sb.WriteString("|------|--------|---------|----------|\n")
		for _, r := range results {
			security := r.Annotations.Security
			if security != "" {
				security = "**" + security + "**"
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", r.Name, statusIcon(r.Status), escapeCell(r.Annotations.Purpose), escapeCell(security))
		}
		sb.WriteString("\n")
	}

	if s.Failed > 0 {
		sb.WriteString("## Failure Details\n\n")
		for _, r := range s.Results {
			if r.Status != StatusFail {
				continue
			}
			fmt.Fprintf(&sb, "### %s (%s)\n```\n%s\n```\n\n", r.Name, r.Package, strings.TrimRight(r.Failure, "\n"))
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
