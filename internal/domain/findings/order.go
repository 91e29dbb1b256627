package findings

import "sort"

// Dedupe drops findings whose (tool, path, line, code) was already seen,
// keeping the first occurrence. The input slice is not modified.
func Dedupe(in []Finding) []Finding {
	out := make([]Finding, 0, len(in))
	seen := make(map[Key]struct{}, len(in))
	for _, f := range in {
		k := f.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Sort orders findings by path, line, then severity (high first). The
// remaining fields break ties so the order is total.
func Sort(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra > rb
		}
		if a.Tool != b.Tool {
			return a.Tool < b.Tool
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if a.Col != b.Col {
			return a.Col < b.Col
		}
		return a.Message < b.Message
	})
}

// FileCount is the number of findings reported against one path.
type FileCount struct {
	Path     string `json:"path"`
	Findings int    `json:"findings"`
}

// TopFiles returns the n paths with the most findings, ties broken by path.
func TopFiles(fs []Finding, n int) []FileCount {
	counts := map[string]int{}
	for _, f := range fs {
		counts[f.Path]++
	}
	out := make([]FileCount, 0, len(counts))
	for p, c := range counts {
		out = append(out, FileCount{Path: p, Findings: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Findings != out[j].Findings {
			return out[i].Findings > out[j].Findings
		}
		return out[i].Path < out[j].Path
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
