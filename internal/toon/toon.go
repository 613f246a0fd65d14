// Package toon implements TOON (Token-Oriented Object Notation) encoding of run reports.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/empathy/internal/model"
)

var (
	// Delimiters and brackets would be read as structure inside a row.
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
	escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
)

// table is one tabular TOON section.
type table struct {
	name    string
	columns []string
	rows    [][]string
}

func (t table) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", t.name, len(t.rows), strings.Join(t.columns, ","))
	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = encodeValue(cell)
		}
		b.WriteString("\n  ")
		b.WriteString(strings.Join(cells, ","))
	}
	return b.String()
}

// Encode converts a run Report into TOON format. The failures table is
// omitted when the run had none.
func Encode(rep *model.Report) string {
	files := table{name: "files", columns: []string{"path"}}
	for _, f := range rep.Files {
		files.rows = append(files.rows, []string{f})
	}

	rewrites := table{name: "rewrites", columns: []string{"file", "kind", "from", "to"}}
	for _, rw := range rep.Rewrites {
		rewrites.rows = append(rewrites.rows, []string{rw.File, string(rw.Kind), rw.From, rw.To})
	}

	parts := []string{
		"operation: " + encodeValue(rep.Operation),
		"root: " + encodeValue(rep.Root),
		files.String(),
		rewrites.String(),
	}

	if len(rep.Failures) > 0 {
		failures := table{name: "failures", columns: []string{"file", "stage", "error"}}
		for _, f := range rep.Failures {
			failures.rows = append(failures.rows, []string{f.File, f.Stage, f.Err})
		}
		parts = append(parts, failures.String())
	}

	return strings.Join(parts, "\n")
}

// encodeValue returns value bare when a TOON reader would read it back as
// the same string, and quoted otherwise.
func encodeValue(value string) string {
	if mustQuote(value) {
		return `"` + escaper.Replace(value) + `"`
	}
	return value
}

func mustQuote(value string) bool {
	switch {
	case value == "":
		return true
	case value != strings.TrimSpace(value), strings.ContainsAny(value, "\n\r\t"):
		return true
	case looksNumeric.MatchString(value):
		return false
	case strings.HasPrefix(value, "-"):
		return true
	}
	if _, ok := keywords[strings.ToLower(value)]; ok {
		return true
	}
	return needsQuoting.MatchString(value)
}
