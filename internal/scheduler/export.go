package scheduler

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// WriteDOT renders the graph in Graphviz format. Edges point from a
// dependency to its dependent, so the drawing reads in execution order.
// Nodes are labelled with their status.
func WriteDOT(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph tasks {")
	fmt.Fprintln(bw, "  rankdir=LR;")
	for _, id := range g.ids {
		task := g.tasks[id]
		fmt.Fprintf(bw, "  %s [label=%s];\n", strconv.Quote(id), strconv.Quote(id+"\n"+task.Status.String()))
	}
	for _, id := range g.ids {
		for _, depID := range g.deps[id] {
			fmt.Fprintf(bw, "  %s -> %s;\n", strconv.Quote(depID), strconv.Quote(id))
		}
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

// WriteTSort writes one "dependency task" pair per line, the input format of
// Unix tsort(1). Tasks without dependencies are written as "task task" so they
// still appear in the sorted output.
func WriteTSort(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	for _, id := range g.ids {
		deps := g.deps[id]
		if len(deps) == 0 {
			fmt.Fprintf(bw, "%s %s\n", id, id)
			continue
		}
		for _, depID := range deps {
			fmt.Fprintf(bw, "%s %s\n", depID, id)
		}
	}
	return bw.Flush()
}
