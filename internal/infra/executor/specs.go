package executor

import "github.com/bryanwahyu/automaton-review/internal/domain/findings"

// Spec describes how to invoke one tool. The tree is always the working
// directory and "." is the scan target.
type Spec struct {
	Binary string
	Args   []string
	// Image is used in docker mode.
	Image string
	// OK reports whether a non-zero exit code still carries a valid report.
	// Nil accepts only 0.
	OK func(code int) bool
}

const DefaultImage = "automaton-review/pytools:latest"

func exitIn(codes ...int) func(int) bool {
	return func(code int) bool {
		for _, c := range codes {
			if c == code {
				return true
			}
		}
		return false
	}
}

// DefaultSpecs is the lookup table for every known tool.
func DefaultSpecs(image string) map[findings.Tool]Spec {
	if image == "" {
		image = DefaultImage
	}
	return map[findings.Tool]Spec{
		findings.ToolPylint: {
			Binary: "pylint",
			// json2 (pylint >= 3) carries the global score next to the messages
			Args:  []string{"--output-format=json2", "--recursive=y", "--persistent=n", "."},
			Image: image,
			// pylint exit status is a bitmask; only 32 (usage error) means no report
			OK: func(code int) bool { return code&32 == 0 },
		},
		findings.ToolBandit: {
			Binary: "bandit",
			Args:   []string{"-r", "-f", "json", "-q", "."},
			Image:  image,
			OK:     exitIn(0, 1),
		},
		findings.ToolRadonCC: {
			Binary: "radon",
			Args:   []string{"cc", "-s", "-j", "."},
			Image:  image,
			OK:     exitIn(0),
		},
		findings.ToolRadonMI: {
			Binary: "radon",
			Args:   []string{"mi", "-j", "."},
			Image:  image,
			OK:     exitIn(0),
		},
		findings.ToolRuff: {
			Binary: "ruff",
			Args:   []string{"check", "--output-format=json", "--exit-zero", "--no-cache", "."},
			Image:  image,
			OK:     exitIn(0, 1),
		},
	}
}
