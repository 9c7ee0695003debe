package model

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

type summaryRow struct {
	name    string
	kind    string
	in, out string
	params  int
}

func layerLabel(l LayerSpec) string {
	switch l.Kind {
	case Conv:
		return fmt.Sprintf("Conv2D %dx%d/%d pad %d %s", l.Kernel, l.Kernel, l.Stride, l.Padding, l.Activation)
	case MaxPool:
		return fmt.Sprintf("MaxPool2D %dx%d/%d", l.Kernel, l.Kernel, l.Stride)
	case Dense:
		return "Dense " + l.Activation.String()
	case Output:
		return "Output softmax"
	default:
		return l.Kind.String()
	}
}

func renderSummary(title, input string, rows []summaryRow) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\n", title, input)

	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tTYPE\tIN\tOUT\tPARAMS")
	total := 0
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", r.name, r.kind, r.in, r.out, r.params)
		total += r.params
	}
	tw.Flush()

	fmt.Fprintf(&sb, "Total parameters: %d\n", total)
	return sb.String()
}
