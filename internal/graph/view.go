package graph

// View 返回给前端的计划图
type View struct {
	Recommendation Summary    `json:"recommendation"`
	Nodes          []ViewNode `json:"nodes"`
	Edges          []ViewEdge `json:"edges"`
}

type Summary struct {
	ID       string `json:"id"`
	Scope    Scope  `json:"scope"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Status   string `json:"status"`
}

type ViewNode struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Position Position `json:"position"`
	Status   string   `json:"status"`
}

type ViewEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Consistent 所有边的端点都在节点里
func (v *View) Consistent() bool {
	ids := make(map[string]struct{}, len(v.Nodes))
	for _, n := range v.Nodes {
		ids[n.ID] = struct{}{}
	}
	for _, e := range v.Edges {
		if _, ok := ids[e.Source]; !ok {
			return false
		}
		if _, ok := ids[e.Target]; !ok {
			return false
		}
	}
	return true
}
