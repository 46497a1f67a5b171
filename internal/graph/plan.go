package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// 节点状态
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
)

func ValidNodeStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

var ErrEmptyOutput = errors.New("generation returned no usable output")

// ModelID 模型给出的节点/边 id，字符串和数字都接受
type ModelID string

func (id *ModelID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ModelID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("model id must be a string or number: %s", b)
	}
	*id = ModelID(n.String())
	return nil
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UnmarshalJSON 坐标可以是数字或数字字符串，解析不了按 0 处理
func (p *Position) UnmarshalJSON(b []byte) error {
	var raw struct {
		X json.RawMessage `json:"x"`
		Y json.RawMessage `json:"y"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.X, p.Y = coord(raw.X), coord(raw.Y)
	return nil
}

func coord(raw json.RawMessage) float64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

type NodeData struct {
	Label string `json:"label"`
}

// PlanNode 模型输出的节点
type PlanNode struct {
	ID       ModelID   `json:"id"`
	Data     NodeData  `json:"data"`
	Position *Position `json:"position,omitempty"`
}

type PlanEdge struct {
	ID     ModelID `json:"id"`
	Source ModelID `json:"source"`
	Target ModelID `json:"target"`
}

type Plan struct {
	Nodes []PlanNode `json:"nodes"`
	Edges []PlanEdge `json:"edges"`
}

// Output 模型返回：结构化计划或原始文本
type Output struct {
	Plan *Plan
	Text string
}

// GenerateOptions 单次生成参数
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

// NodePosition 没有坐标时取原点
func NodePosition(n PlanNode) Position {
	if n.Position == nil {
		return Position{}
	}
	return *n.Position
}

// Normalize 把模型输出整理成计划；文本解析失败时退化为只含原文的单节点计划
func Normalize(out Output) (Plan, error) {
	if out.Plan != nil {
		if len(out.Plan.Nodes) == 0 {
			return Plan{}, ErrEmptyOutput
		}
		return *out.Plan, nil
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return Plan{}, ErrEmptyOutput
	}
	if plan, ok := ParsePlan(text); ok {
		return plan, nil
	}
	return Fallback(text), nil
}

// ParsePlan 从文本里取出计划，容忍代码块和前后的说明文字
func ParsePlan(text string) (Plan, bool) {
	var plan Plan
	if err := json.Unmarshal([]byte(text), &plan); err == nil && len(plan.Nodes) > 0 {
		return plan, true
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Plan{}, false
	}
	plan = Plan{}
	if err := json.Unmarshal([]byte(text[start:end+1]), &plan); err != nil || len(plan.Nodes) == 0 {
		return Plan{}, false
	}
	return plan, true
}

// Fallback 单节点兜底计划
func Fallback(text string) Plan {
	return Plan{
		Nodes: []PlanNode{{ID: "1", Data: NodeData{Label: text}}},
	}
}

// ResolvedEdge 端点已换成落库节点 id 的边
type ResolvedEdge struct {
	ModelKey string
	Source   uint64
	Target   uint64
}

// ResolveEdges 按模型 id 在 plan.Nodes 中首次出现的下标映射到 created[i]。
// 找不到的 source 落到第一个节点，target 落到最后一个节点，会丢失信息。
func ResolveEdges(plan Plan, created []uint64) []ResolvedEdge {
	if len(created) == 0 || len(plan.Edges) == 0 {
		return nil
	}

	index := make(map[ModelID]int, len(plan.Nodes))
	for i, n := range plan.Nodes {
		if i >= len(created) {
			break
		}
		if _, seen := index[n.ID]; !seen {
			index[n.ID] = i
		}
	}

	edges := make([]ResolvedEdge, 0, len(plan.Edges))
	for _, e := range plan.Edges {
		src := created[0]
		if i, ok := index[e.Source]; ok {
			src = created[i]
		}
		dst := created[len(created)-1]
		if i, ok := index[e.Target]; ok {
			dst = created[i]
		}
		edges = append(edges, ResolvedEdge{ModelKey: string(e.ID), Source: src, Target: dst})
	}
	return edges
}
