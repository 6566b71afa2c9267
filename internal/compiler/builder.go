package compiler

import (
	"fmt"

	"github.com/ylxdzsw/sopipe/internal/actorsys"
	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/component"
)

// pendingNode holds a node's un-finalized Create inputs: the raw
// argument list gathered while walking the script, missing only the
// `outputs` entry, which isn't known until the whole script has been
// walked (spec.md §4.3 rule 8).
type pendingNode struct {
	symmetric bool

	forwardComponent component.Component
	forwardArgs      argument.List

	backwardComponent component.Component // nil when symmetric
	backwardArgs      argument.List
}

// builder walks a parsed script and produces a compiled actorsys.Graph,
// implementing the evaluation rules of spec.md §4.3. It is the Go
// counterpart of `load_script`'s `eval`/`walk` pair in
// original_source/src/script.rs, adapted to this module's flat
// Node-with-Forward/Backward-actor-pair representation rather than the
// original's two-physical-nodes-per-composite layout.
type builder struct {
	components map[string]component.Component
	symbols    map[string]int // bound identifier -> node index

	nodes    []*actorsys.Node
	pending  []pendingNode
	outNames [][]string // parallel to nodes; grows alongside Outputs
}

// Build parses src and compiles it into a Graph using the supplied
// components as the registered function-name symbol table.
func Build(src string, components []component.Component) (*actorsys.Graph, error) {
	sc, err := parseScript(src)
	if err != nil {
		return nil, err
	}

	b := &builder{
		components: make(map[string]component.Component),
		symbols:    make(map[string]int),
	}
	for _, c := range components {
		for _, fn := range c.Functions() {
			b.components[fn] = c
		}
	}

	for _, st := range sc.stmts {
		_, tail, err := b.evalPipe(st.pipe)
		if err != nil {
			return nil, err
		}
		if st.assignName != "" {
			b.symbols[st.assignName] = tail
		}
	}

	if err := b.finalize(); err != nil {
		return nil, err
	}

	return &actorsys.Graph{Nodes: b.nodes}, nil
}

func (b *builder) allocate(name string) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, &actorsys.Node{Name: name})
	b.pending = append(b.pending, pendingNode{})
	b.outNames = append(b.outNames, nil)
	return idx
}

// addOutput wires toIdx as an output of fromIdx (rule 6). Composite
// nodes (built by `!!`) may carry at most one output.
func (b *builder) addOutput(fromIdx, toIdx int, name string) error {
	if !b.pending[fromIdx].symmetric && len(b.nodes[fromIdx].Outputs) >= 1 {
		return fmt.Errorf("compiler: composite node %q may have at most one output", b.nodes[fromIdx].Name)
	}
	b.nodes[fromIdx].Outputs = append(b.nodes[fromIdx].Outputs, toIdx)
	b.outNames[fromIdx] = append(b.outNames[fromIdx], name)
	return nil
}

// evalPipe wires an entire pipe chain and returns both the index of its
// first cnode (head) and its last (tail). Chain continuation (`a => b`,
// and a bound identifier used as the start of a later pipe) always
// extends from the tail; the nested-output argument form and the
// leading `x.out =>` prefix both attach to a target's head, since they
// route frames into the *start* of the referenced sub-pipe.
func (b *builder) evalPipe(pe *pipeExpr) (head, tail int, err error) {
	var leadIdx int
	if pe.leadRef != "" {
		idx, ok := b.symbols[pe.leadRef]
		if !ok {
			return 0, 0, fmt.Errorf("compiler: undefined identifier %q", pe.leadRef)
		}
		leadIdx = idx
	}

	head, tail = -1, -1
	for i, cn := range pe.chain {
		idx, err := b.evalCNode(&cn)
		if err != nil {
			return 0, 0, err
		}
		if i == 0 {
			head = idx
			if pe.leadRef != "" {
				if err := b.addOutput(leadIdx, idx, pe.leadOutput); err != nil {
					return 0, 0, err
				}
			}
		}
		if tail != -1 {
			if err := b.addOutput(tail, idx, ""); err != nil {
				return 0, 0, err
			}
		}
		tail = idx
	}
	return head, tail, nil
}

func (b *builder) evalCNode(cn *cnode) (int, error) {
	if cn.ref != "" {
		if idx, ok := b.symbols[cn.ref]; ok {
			return idx, nil
		}
		if _, ok := b.components[cn.ref]; ok {
			return 0, fmt.Errorf("compiler: %q is a function and must be called, e.g. %s(...)", cn.ref, cn.ref)
		}
		return 0, fmt.Errorf("compiler: undefined identifier %q", cn.ref)
	}

	if cn.backward == nil {
		comp, ok := b.components[cn.forward.ident]
		if !ok {
			return 0, fmt.Errorf("compiler: undefined identifier %q", cn.forward.ident)
		}
		idx := b.allocate(cn.forward.ident)
		args, err := b.evalArgs(cn.forward, idx)
		if err != nil {
			return 0, err
		}
		b.pending[idx] = pendingNode{symmetric: true, forwardComponent: comp, forwardArgs: args}
		return idx, nil
	}

	fcomp, ok := b.components[cn.forward.ident]
	if !ok {
		return 0, fmt.Errorf("compiler: undefined identifier %q", cn.forward.ident)
	}
	bcomp, ok := b.components[cn.backward.ident]
	if !ok {
		return 0, fmt.Errorf("compiler: undefined identifier %q", cn.backward.ident)
	}

	idx := b.allocate(cn.forward.ident + " !! " + cn.backward.ident)
	fargs, err := b.evalArgs(cn.forward, idx)
	if err != nil {
		return 0, err
	}
	bargs, err := b.evalArgs(cn.backward, idx)
	if err != nil {
		return 0, err
	}
	b.pending[idx] = pendingNode{
		forwardComponent: fcomp, forwardArgs: fargs,
		backwardComponent: bcomp, backwardArgs: bargs,
	}
	return idx, nil
}

// evalArgs builds a node call's raw argument list (function_name plus
// every literal arg), resolving nested inline pipes as a side effect
// that wires them as named outputs of ownerIdx (spec.md §4.3's "special
// form" for arguments).
func (b *builder) evalArgs(nc *nodeCall, ownerIdx int) (argument.List, error) {
	args := argument.List{{Name: argument.KeyFunctionName, Value: argument.String(nc.ident)}}

	for _, item := range nc.args {
		if item.isValue {
			var v argument.Value
			if item.value.isInt {
				v = argument.Int(item.value.num)
			} else {
				v = argument.String(item.value.str)
			}
			args = append(args, argument.Pair{Name: item.name, Value: v})
			continue
		}

		head, _, err := b.evalPipe(item.nestedPipe)
		if err != nil {
			return nil, err
		}
		if err := b.addOutput(ownerIdx, head, item.nestedOutput); err != nil {
			return nil, err
		}
	}

	return args, nil
}

func (b *builder) finalize() error {
	for i, pend := range b.pending {
		names := b.outNames[i]
		outputsVal := make([]argument.Value, len(names))
		for j, n := range names {
			outputsVal[j] = argument.String(n)
		}
		outputsPair := argument.Pair{Name: argument.KeyOutputs, Value: argument.ListValue(outputsVal)}

		forwardArgs := append(append(argument.List{}, pend.forwardArgs...), outputsPair)
		forwardActor, err := pend.forwardComponent.Create(forwardArgs)
		if err != nil {
			return fmt.Errorf("compiler: node %q: %w", b.nodes[i].Name, err)
		}

		if pend.symmetric {
			b.nodes[i].Forward = forwardActor
			b.nodes[i].Backward = forwardActor
			continue
		}

		backwardArgs := append(append(argument.List{}, pend.backwardArgs...), outputsPair)
		backwardActor, err := pend.backwardComponent.Create(backwardArgs)
		if err != nil {
			return fmt.Errorf("compiler: node %q: %w", b.nodes[i].Name, err)
		}
		b.nodes[i].Forward = forwardActor
		b.nodes[i].Backward = backwardActor
	}
	return nil
}
