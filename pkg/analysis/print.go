package analysis

import (
	"fmt"
	"io"

	"github.com/edp1096/toy-pic/pkg/util"
)

// PrintResults writes the stored time history as a table.
func PrintResults(w io.Writer, results map[string][]float64) {
	times := results[KeyTime]
	fmt.Fprintf(w, "\nTransient Results (%d time points):\n", len(times))
	fmt.Fprintf(w, "%-12s %-13s %-13s %-13s %5s %9s\n", "Time", "W_field", "W_kinetic", "W_total", "Iter", "Norm")
	fmt.Fprintln(w, "------------------------------------------------------------------------")

	field, kinetic, total := results[KeyField], results[KeyKinetic], results[KeyTotal]
	iters, norms := results[KeyIterations], results[KeyNorm]
	for i, t := range times {
		fmt.Fprintf(w, "%-12s %13.6e %13.6e %13.6e %5d %s\n",
			util.FormatValueFactor(t, "s"), field[i], kinetic[i], total[i], int(iters[i]), util.FormatNorm(norms[i]))
	}
}
