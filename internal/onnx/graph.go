package onnx

import (
	"fmt"

	"github.com/born-ml/onnxgl/internal/tensor"
)

// NoInput marks an omitted optional node input.
const NoInput = -1

// Node represents an ONNX operation node. Inputs and Outputs are indices
// into Graph.Values.
type Node struct {
	Name       string     // Node name (optional)
	OpType     string     // Operation type (e.g., "Conv", "MatMul", "Relu")
	Domain     string     // Custom domain (empty for default)
	Attributes Attributes // Operation attributes
	Inputs     []int      // Input value indices, NoInput for omitted optionals
	Outputs    []int      // Output value indices
}

// Value is a named edge of the graph.
type Value struct {
	Name string
}

// OpsetImport pins the operator set version for a domain.
type OpsetImport struct {
	Domain  string
	Version int
}

// Graph is a static computation graph. Model parsing happens elsewhere;
// this is the form in which graphs reach a session.
type Graph struct {
	Values       []Value
	Nodes        []*Node
	Initializers map[int]*tensor.Tensor // value index -> constant weight
	Inputs       []int                  // value indices fed by the caller
	Outputs      []int                  // value indices returned to the caller
	Opsets       []OpsetImport
}

// AddValue appends a named value and returns its index.
func (g *Graph) AddValue(name string) int {
	g.Values = append(g.Values, Value{Name: name})
	return len(g.Values) - 1
}

// AddInitializer appends a named constant value and returns its index.
func (g *Graph) AddInitializer(name string, t *tensor.Tensor) int {
	idx := g.AddValue(name)
	if g.Initializers == nil {
		g.Initializers = make(map[int]*tensor.Tensor)
	}
	g.Initializers[idx] = t
	return idx
}

// AddNode appends a node.
func (g *Graph) AddNode(n *Node) {
	g.Nodes = append(g.Nodes, n)
}

// OpsetVersion returns the imported opset version for domain, or 0.
func (g *Graph) OpsetVersion(domain string) int {
	for _, o := range g.Opsets {
		if o.Domain == domain {
			return o.Version
		}
	}
	return 0
}

// InitializerIDs returns the tensor IDs of every initializer.
func (g *Graph) InitializerIDs() []tensor.ID {
	ids := make([]tensor.ID, 0, len(g.Initializers))
	for _, t := range g.Initializers {
		ids = append(ids, t.ID())
	}
	return ids
}

// Validate checks that every value index is in range and that each value has
// at most one producer.
func (g *Graph) Validate() error {
	n := len(g.Values)
	inRange := func(i int) bool { return i >= 0 && i < n }

	produced := make(map[int]string)
	for idx := range g.Initializers {
		if !inRange(idx) {
			return fmt.Errorf("initializer index %d out of range", idx)
		}
		produced[idx] = "initializer"
	}
	for _, idx := range g.Inputs {
		if !inRange(idx) {
			return fmt.Errorf("graph input index %d out of range", idx)
		}
	}
	for _, idx := range g.Outputs {
		if !inRange(idx) {
			return fmt.Errorf("graph output index %d out of range", idx)
		}
	}
	for _, node := range g.Nodes {
		for _, idx := range node.Inputs {
			if idx != NoInput && !inRange(idx) {
				return fmt.Errorf("node %s (%s): input index %d out of range", node.Name, node.OpType, idx)
			}
		}
		for _, idx := range node.Outputs {
			if !inRange(idx) {
				return fmt.Errorf("node %s (%s): output index %d out of range", node.Name, node.OpType, idx)
			}
			if prev, ok := produced[idx]; ok {
				return fmt.Errorf("value %q produced by both %s and %s", g.Values[idx].Name, prev, node.OpType)
			}
			produced[idx] = node.OpType
		}
	}
	return nil
}

// TopoSort orders the nodes so every producer precedes its consumers.
// The relative order of independent nodes is preserved.
func (g *Graph) TopoSort() error {
	outputToNode := make(map[int]int)
	for i, node := range g.Nodes {
		for _, out := range node.Outputs {
			outputToNode[out] = i
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(g.Nodes))
	result := make([]*Node, 0, len(g.Nodes))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("graph has a cycle through node %s (%s)", g.Nodes[i].Name, g.Nodes[i].OpType)
		}
		state[i] = visiting
		for _, in := range g.Nodes[i].Inputs {
			if dep, ok := outputToNode[in]; ok {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[i] = done
		result = append(result, g.Nodes[i])
		return nil
	}

	for i := range g.Nodes {
		if err := visit(i); err != nil {
			return err
		}
	}
	g.Nodes = result
	return nil
}
