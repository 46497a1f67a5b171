package event

// 事件主题
const (
	TopicGenerateIndividual = "event.generate.individual"
	TopicGenerateCommunity  = "event.generate.community"
	TopicMembershipResolved = "event.membership.resolved"
)

// HouseholdSnapshot 触发生成时的家庭数据
type HouseholdSnapshot struct {
	Members        int    `json:"members"`
	EnergyUsage    string `json:"energy_usage,omitempty"`
	WaterUsage     string `json:"water_usage,omitempty"`
	Transportation string `json:"transportation,omitempty"`
	WasteHabits    string `json:"waste_habits,omitempty"`
	Goals          string `json:"goals,omitempty"`
}

type IndividualPayload struct {
	UserID    uint64             `json:"user_id"`
	Household *HouseholdSnapshot `json:"household,omitempty"`
}

type CommunityPayload struct {
	CommunityID uint64 `json:"community_id"`
}

type MembershipResolvedPayload struct {
	RequestID   uint64 `json:"request_id"`
	UserID      uint64 `json:"user_id"`
	CommunityID uint64 `json:"community_id"`
	Status      string `json:"status"`
}
