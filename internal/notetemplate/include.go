package notetemplate

import (
	"fmt"
	"strings"
	"text/template"
	"text/template/parse"
)

// partialRefs returns the partial names t passes to include. Each include
// executes separately, so template depth limits do not apply across it and
// the names must be known at compile time for cycle detection.
func partialRefs(t *template.Template) ([]Kind, error) {
	var refs []Kind
	var walk func(n parse.Node) error
	walkBranch := func(b *parse.BranchNode) error {
		if err := walk(b.Pipe); err != nil {
			return err
		}
		if err := walk(b.List); err != nil {
			return err
		}
		return walk(b.ElseList)
	}
	walk = func(n parse.Node) error {
		switch n := n.(type) {
		case *parse.ListNode:
			if n == nil {
				return nil
			}
			for _, c := range n.Nodes {
				if err := walk(c); err != nil {
					return err
				}
			}
		case *parse.ActionNode:
			return walk(n.Pipe)
		case *parse.IfNode:
			return walkBranch(&n.BranchNode)
		case *parse.RangeNode:
			return walkBranch(&n.BranchNode)
		case *parse.WithNode:
			return walkBranch(&n.BranchNode)
		case *parse.TemplateNode:
			return walk(n.Pipe)
		case *parse.ChainNode:
			return walk(n.Node)
		case *parse.PipeNode:
			if n == nil {
				return nil
			}
			for _, c := range n.Cmds {
				if err := walk(c); err != nil {
					return err
				}
			}
		case *parse.CommandNode:
			if id, ok := n.Args[0].(*parse.IdentifierNode); ok && id.Ident == "include" {
				if len(n.Args) < 2 {
					return fmt.Errorf("include needs a partial name")
				}
				name, ok := n.Args[1].(*parse.StringNode)
				if !ok {
					return fmt.Errorf("include needs a quoted partial name, got %s", n.Args[1])
				}
				refs = append(refs, Kind(name.Text))
			}
			for _, a := range n.Args {
				if err := walk(a); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, sub := range t.Templates() {
		if sub.Tree == nil {
			continue
		}
		if err := walk(sub.Tree.Root); err != nil {
			return nil, err
		}
	}
	return refs, nil
}

// checkIncludeCycles rejects a template set in which a partial reaches
// itself through include.
func checkIncludeCycles(set map[Kind]*compiled) error {
	var visit func(k Kind, path []Kind) error
	visit = func(k Kind, path []Kind) error {
		for i, p := range path {
			if p == k {
				names := make([]string, 0, len(path)-i+1)
				for _, q := range append(path[i:], k) {
					names = append(names, string(q))
				}
				return fmt.Errorf("notetemplate: include cycle %s", strings.Join(names, " -> "))
			}
		}
		c, ok := set[k]
		if !ok {
			return nil
		}
		path = append(path, k)
		for _, r := range c.refs {
			if !r.IsPartial() {
				continue
			}
			if err := visit(r, path); err != nil {
				return err
			}
		}
		return nil
	}
	for _, k := range Kinds {
		if err := visit(k, nil); err != nil {
			return err
		}
	}
	return nil
}
