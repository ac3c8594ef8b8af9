package design

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
)

// ToDot renders the combination's structure in graphviz dot format, for
// eyeballing which terms and weights make up a design objective.
func (c *LinearCombination) ToDot() (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName("losses"); err != nil {
		return "", err
	}
	g.SetDir(true)

	root := "combination"
	if err := g.AddNode("losses", root, map[string]string{
		"label": `"linear combination"`,
		"shape": "box",
	}); err != nil {
		return "", err
	}
	for i, wt := range c.terms {
		id := fmt.Sprintf("term_%d", i)
		if err := g.AddNode("losses", id, map[string]string{
			"label": fmt.Sprintf(`"%s"`, wt.name),
		}); err != nil {
			return "", err
		}
		if err := g.AddEdge(root, id, true, map[string]string{
			"label": fmt.Sprintf(`"%g"`, wt.weight),
		}); err != nil {
			return "", err
		}
	}
	return g.String(), nil
}
