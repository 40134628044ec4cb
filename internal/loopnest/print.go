package loopnest

import (
	"fmt"
	"strings"

	"github.com/roach88/nestc/internal/ir"
)

// String renders the program as an indented pseudo-code loop nest.
// The output is deterministic and is used by golden tests.
func (p *Program) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pipeline %s\n", p.Name)
	for _, a := range p.Args {
		switch a.Kind {
		case ArgScalar:
			fmt.Fprintf(&b, "  scalar %s: %s", a.Name, a.Type)
			if a.Default != nil {
				fmt.Fprintf(&b, " = %s", a.Default)
			}
			b.WriteByte('\n')
		default:
			fmt.Fprintf(&b, "  %s %s: %s rank %d region %s\n", a.Kind, a.Name, a.Type, a.Rank, formatRegion(a.Region))
		}
	}
	for _, r := range p.Realizations {
		if r.Output {
			continue
		}
		fmt.Fprintf(&b, "realize %s: %s %s\n", r.Func, r.Type, formatRegion(r.Region))
	}
	for _, s := range p.Stages {
		fmt.Fprintf(&b, "produce %s:\n", s.Func)
		writeStmts(&b, s.Body, 1)
	}
	return b.String()
}

func writeStmts(b *strings.Builder, stmts []Stmt, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, s := range stmts {
		switch s := s.(type) {
		case *Loop:
			fmt.Fprintf(b, "%s%sfor %s in [%d, %d)", indent, loopPrefix(s), s.Var, s.Min, s.Min+s.Extent)
			if s.Clamp != nil {
				fmt.Fprintf(b, " clamp %s", s.Clamp)
			}
			b.WriteString(":\n")
			for _, l := range s.Lets {
				fmt.Fprintf(b, "%s  let %s = %s\n", indent, l.Var, l.Value)
			}
			writeStmts(b, s.Body, depth+1)
		case *Store:
			b.WriteString(indent)
			if len(s.Guards) > 0 {
				guards := make([]string, len(s.Guards))
				for i, g := range s.Guards {
					guards[i] = g.String()
				}
				fmt.Fprintf(b, "if %s: ", strings.Join(guards, " && "))
			}
			idx := make([]string, len(s.Index))
			for i, e := range s.Index {
				idx[i] = e.String()
			}
			fmt.Fprintf(b, "%s(%s) = %s\n", s.Buffer, strings.Join(idx, ", "), s.Value)
		}
	}
}

func loopPrefix(l *Loop) string {
	var parts []string
	if l.Parallel {
		parts = append(parts, "parallel")
	}
	switch l.Mode {
	case ir.Vectorized:
		parts = append(parts, fmt.Sprintf("vectorized<%d>", l.Factor))
	case ir.Unrolled:
		parts = append(parts, fmt.Sprintf("unrolled<%d>", l.Factor))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " ") + " "
}

func formatRegion(region []ir.Range) string {
	if len(region) == 0 {
		return "scalar"
	}
	parts := make([]string, len(region))
	for i, r := range region {
		parts[i] = r.String()
	}
	return strings.Join(parts, " x ")
}
