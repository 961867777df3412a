// Package report renders per-run harvest reports as markdown and HTML.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"

	"newsharvest/internal/pipeline"
)

var md = goldmark.New()

// Write renders result into a markdown report plus an HTML copy under
// dataDir/reports and returns the markdown path.
func Write(dataDir string, result *pipeline.Result) (string, error) {
	dir := filepath.Join(dataDir, "reports")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating reports directory: %w", err)
	}

	markdown := Render(result)
	stamp := result.StartedAt.Format("20060102-150405")
	mdPath := filepath.Join(dir, "harvest-"+stamp+".md")
	if err := os.WriteFile(mdPath, []byte(markdown), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	var html bytes.Buffer
	if err := md.Convert([]byte(markdown), &html); err != nil {
		return mdPath, fmt.Errorf("rendering HTML report: %w", err)
	}
	htmlPath := filepath.Join(dir, "harvest-"+stamp+".html")
	if err := os.WriteFile(htmlPath, html.Bytes(), 0o644); err != nil {
		return mdPath, fmt.Errorf("writing HTML report: %w", err)
	}

	return mdPath, nil
}

// Render builds the markdown body for a run result.
func Render(result *pipeline.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Harvest report %s\n\n", result.StartedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Run finished in %s with %d newly persisted articles.\n\n",
		result.FinishedAt.Sub(result.StartedAt).Round(1e9), result.NewlyPersisted())

	b.WriteString("| Category | Sweeps | Extracted | Persisted | Duplicates | Rejected | Failed | Quota |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, c := range result.Categories {
		quota := "unmet"
		if c.QuotaMet {
			quota = "met"
		}
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %d | %d | %s |\n",
			c.Category, c.Sweeps, c.Extracted, c.Persisted, c.Duplicates, c.Rejected, c.Failed, quota)
	}

	for _, c := range result.Categories {
		if len(c.Reasons) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## Skip reasons: %s\n\n", c.Category)
		reasons := make([]string, 0, len(c.Reasons))
		for r := range c.Reasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Fprintf(&b, "- %s: %d\n", r, c.Reasons[r])
		}
	}

	return b.String()
}

// Latest returns the contents of the newest markdown report, or an empty
// string when none exist.
func Latest(dataDir string) (string, error) {
	dir := filepath.Join(dataDir, "reports")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)

	data, err := os.ReadFile(filepath.Join(dir, names[len(names)-1]))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
