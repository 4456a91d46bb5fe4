package parser

import (
	"gopkg.in/yaml.v3"
)

// yamlGraph is the intermediate structure a graph document decodes into
// before transformation to the graph AST.
type yamlGraph struct {
	GraphID      string          `yaml:"graph_id"`
	Tenant       string          `yaml:"tenant"`
	DecisionType string          `yaml:"decision_type"`
	Revision     int             `yaml:"revision"`
	Attributes   []string        `yaml:"attributes"`
	Defaults     yamlDefaults    `yaml:"defaults"`
	Nodes        []yamlNode      `yaml:"nodes"`
	Edges        []yamlEdge      `yaml:"edges"`
	Guardrails   []yamlGuardrail `yaml:"guardrails"`

	node *yaml.Node // original document node for line numbers
}

// yamlDefaults carries graph-level evaluation defaults.
type yamlDefaults struct {
	SelectionPolicy  string `yaml:"selection_policy"`
	OnMissingContext string `yaml:"on_missing_context"`
	DefaultAction    string `yaml:"default_action"`
}

// yamlNode is an intermediate node structure.
type yamlNode struct {
	ID          string         `yaml:"id"`
	Kind        string         `yaml:"kind"`
	Label       string         `yaml:"label"`
	Priority    int            `yaml:"priority"`
	Weight      float64        `yaml:"weight"`
	Guard       *yamlExpr      `yaml:"guard"`
	Params      map[string]any `yaml:"params"`
	Arbitration string         `yaml:"arbitration"`

	node *yaml.Node
}

// yamlEdge is an intermediate edge structure.
type yamlEdge struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Kind string `yaml:"kind"`

	node *yaml.Node
}

// yamlGuardrail is an intermediate guardrail declaration.
type yamlGuardrail struct {
	ID      string         `yaml:"id"`
	When    *yamlExpr      `yaml:"when"`
	Effect  string         `yaml:"effect"`
	Params  map[string]any `yaml:"params"`
	Message string         `yaml:"message"`

	node *yaml.Node
}

// yamlExpr is an intermediate guard expression. Exactly one of the variant
// fields should be set; the builder reports an issue otherwise.
type yamlExpr struct {
	Has     string       `yaml:"has"`
	Compare *yamlCompare `yaml:"compare"`
	All     []*yamlExpr  `yaml:"all"`
	Any     []*yamlExpr  `yaml:"any"`
	Not     *yamlExpr    `yaml:"not"`
	Const   *bool        `yaml:"const"` // pointer to distinguish unset vs false

	node *yaml.Node
}

// yamlCompare is an intermediate comparison with operand trees on each side.
type yamlCompare struct {
	Left  *yamlOperand `yaml:"left"`
	Op    string       `yaml:"op"`
	Right *yamlOperand `yaml:"right"`
}

// yamlOperand is an intermediate comparison operand.
type yamlOperand struct {
	Value *yamlValue `yaml:"value"` // literal
	Attr  string     `yaml:"attr"`  // context attribute reference
	Input string     `yaml:"input"` // dynamic input reference
	Field string     `yaml:"field"` // decision outcome field reference
	Calc  *yamlCalc  `yaml:"calc"`  // arithmetic
}

// yamlCalc is an intermediate arithmetic calculation.
type yamlCalc struct {
	Op   string         `yaml:"op"`
	Args []*yamlOperand `yaml:"args"`
}

// yamlValue wraps a literal so that `value: 0` and `value: false` decode
// distinguishably from an unset operand.
type yamlValue struct {
	v   any
	set bool
}

// UnmarshalYAML decodes any scalar or sequence literal.
func (y *yamlValue) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	y.v = v
	y.set = true
	return nil
}

// parseYAMLBytes decodes a graph document into the intermediate structure,
// preserving the document node for line numbers.
func parseYAMLBytes(data []byte) (*yamlGraph, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}

	var g yamlGraph
	if err := node.Decode(&g); err != nil {
		return nil, err
	}

	g.node = &node
	g.attachNodes(&node)
	return &g, nil
}

// attachNodes walks the decoded document and re-attaches yaml nodes to the
// intermediate structures so that the builder can report line numbers.
func (g *yamlGraph) attachNodes(doc *yaml.Node) {
	root := doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		val := root.Content[i+1]
		switch key {
		case "nodes":
			for j := range g.Nodes {
				if j < len(val.Content) {
					g.Nodes[j].node = val.Content[j]
				}
			}
		case "edges":
			for j := range g.Edges {
				if j < len(val.Content) {
					g.Edges[j].node = val.Content[j]
				}
			}
		case "guardrails":
			for j := range g.Guardrails {
				if j < len(val.Content) {
					g.Guardrails[j].node = val.Content[j]
				}
			}
		}
	}
}
