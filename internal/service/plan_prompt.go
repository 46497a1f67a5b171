package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"Green_Community/internal/event"
	"Green_Community/internal/graph"
)

// PlanContext 生成计划时提供给模型的上下文
type PlanContext struct {
	Household *event.HouseholdSnapshot `json:"household,omitempty"`
	Community *CommunityProfile        `json:"community,omitempty"`
}

type CommunityProfile struct {
	Name                  string                    `json:"name"`
	Description           string                    `json:"description,omitempty"`
	ResourceUsage         string                    `json:"resource_usage,omitempty"`
	Infrastructure        string                    `json:"infrastructure,omitempty"`
	EnvironmentalConcerns string                    `json:"environmental_concerns,omitempty"`
	MemberCount           int                       `json:"member_count"`
	Households            []event.HouseholdSnapshot `json:"households,omitempty"`
}

func buildPrompt(s graph.Subject, pc *PlanContext) string {
	var b strings.Builder
	switch s.Scope {
	case graph.ScopeCommunity:
		b.WriteString("Create a step-by-step sustainability action plan for a residential community. ")
		b.WriteString("Focus on shared infrastructure, collective resource use and projects residents can run together. ")
	default:
		b.WriteString("Create a step-by-step sustainability action plan for a single household. ")
		b.WriteString("Focus on concrete changes to energy, water, transport and waste habits. ")
	}
	b.WriteString("Return between 3 and 8 nodes connected in the order they should be done.\n\n")

	if pc == nil || (pc.Household == nil && pc.Community == nil) {
		b.WriteString("No profile data is available; give general advice.")
		return b.String()
	}
	raw, err := json.MarshalIndent(pc, "", "  ")
	if err != nil {
		// PlanContext 只包含基础类型，不会失败
		raw = []byte(fmt.Sprintf("%+v", *pc))
	}
	b.WriteString("Profile data:\n")
	b.Write(raw)
	return b.String()
}

func metaFor(s graph.Subject, pc *PlanContext) (title, category string) {
	if s.Scope == graph.ScopeCommunity {
		if pc != nil && pc.Community != nil && pc.Community.Name != "" {
			return pc.Community.Name + " sustainability plan", string(graph.ScopeCommunity)
		}
		return "Community sustainability plan", string(graph.ScopeCommunity)
	}
	return "Personal sustainability plan", string(graph.ScopeIndividual)
}
