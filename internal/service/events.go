package service

import (
	"Green_Community/internal/event"
	"Green_Community/internal/graph"
	"Green_Community/internal/model"
	"Green_Community/internal/repository/mysql"
)

// 业务事件统一经由 outbox 写出

func individualEvent(userID uint64, h *model.Household) mysql.OutboxMessage {
	return mysql.OutboxMessage{
		Topic:      event.TopicGenerateIndividual,
		SubjectKey: graph.Individual(userID).Key(),
		Payload:    event.IndividualPayload{UserID: userID, Household: snapshotOf(h)},
	}
}

func communityEvent(communityID uint64) mysql.OutboxMessage {
	return mysql.OutboxMessage{
		Topic:      event.TopicGenerateCommunity,
		SubjectKey: graph.Community(communityID).Key(),
		Payload:    event.CommunityPayload{CommunityID: communityID},
	}
}

func resolvedEvent(req *model.JoinRequest) mysql.OutboxMessage {
	return mysql.OutboxMessage{
		Topic:      event.TopicMembershipResolved,
		SubjectKey: graph.Individual(req.UserID).Key(),
		Payload: event.MembershipResolvedPayload{
			RequestID:   req.ID,
			UserID:      req.UserID,
			CommunityID: req.CommunityID,
			Status:      req.Status,
		},
	}
}

func snapshotOf(h *model.Household) *event.HouseholdSnapshot {
	if h == nil {
		return nil
	}
	return &event.HouseholdSnapshot{
		Members:        h.Members,
		EnergyUsage:    h.EnergyUsage,
		WaterUsage:     h.WaterUsage,
		Transportation: h.Transportation,
		WasteHabits:    h.WasteHabits,
		Goals:          h.Goals,
	}
}
