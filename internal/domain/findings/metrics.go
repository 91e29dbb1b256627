package findings

import (
	"regexp"
	"sort"
	"strconv"
)

// Metrics are measurements a tool reports besides findings.
type Metrics struct {
	// PylintScore is pylint's global evaluation out of 10.
	PylintScore *float64 `json:"pylintScore,omitempty"`
	// Maintainability maps a file to its radon maintainability index (0-100).
	Maintainability map[string]float64 `json:"maintainability,omitempty"`
}

// Merge copies the measurements present in o into m.
func (m *Metrics) Merge(o Metrics) {
	if o.PylintScore != nil {
		score := *o.PylintScore
		m.PylintScore = &score
	}
	if len(o.Maintainability) > 0 && m.Maintainability == nil {
		m.Maintainability = make(map[string]float64, len(o.Maintainability))
	}
	for path, mi := range o.Maintainability {
		m.Maintainability[path] = mi
	}
}

// FileMI is one file's maintainability index.
type FileMI struct {
	Path string  `json:"path"`
	MI   float64 `json:"mi"`
}

// LeastMaintainable returns up to n files, lowest index first.
func LeastMaintainable(mi map[string]float64, n int) []FileMI {
	out := make([]FileMI, 0, len(mi))
	for path, v := range mi {
		out = append(out, FileMI{Path: path, MI: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MI != out[j].MI {
			return out[i].MI < out[j].MI
		}
		return out[i].Path < out[j].Path
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

var ratedAt = regexp.MustCompile(`rated at (-?\d+(?:\.\d+)?)/10`)

// ScoreFromText reads pylint's "Your code has been rated at X/10" line.
func ScoreFromText(text string) (float64, bool) {
	m := ratedAt.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
