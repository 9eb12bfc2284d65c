package lifecycle

import (
	"context"
	"fmt"

	"github.com/router-for-me/GroupBuyBusiness/internal/evaluator"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/router-for-me/GroupBuyBusiness/internal/notify"
	"github.com/router-for-me/GroupBuyBusiness/internal/pricing"
)

func (s *Service) joinMessages(ctx context.Context, group *models.Group, closed bool) ([]notify.Message, error) {
	members, errMembers := s.activeMembers(ctx, group.ID)
	if errMembers != nil {
		return nil, errMembers
	}
	msgs := make([]notify.Message, 0, 2*len(members))
	for i := range members {
		msgs = append(msgs, updateMessage(group, members[i].UserID,
			fmt.Sprintf("A new member joined %s. %d/%d participants, price now %s.",
				group.Name, group.CurrentParticipants, group.MaxParticipants, group.CurrentPrice.StringFixed(2))))
	}
	if closed {
		msgs = append(msgs, SuccessMessages(group, members)...)
	}
	return msgs, nil
}

func updateMessage(group *models.Group, userID uint64, body string) notify.Message {
	return notify.Message{
		UserID: userID,
		Kind:   notify.KindGroupUpdate,
		Title:  "Group update",
		Body:   body,
		Data:   groupData(group),
	}
}

// SuccessMessages tells each member the group closed and what it still owes.
func SuccessMessages(group *models.Group, members []models.GroupMember) []notify.Message {
	msgs := make([]notify.Message, 0, len(members))
	for i := range members {
		balance := pricing.Round(pricing.ComputeFinalBalance(group.CurrentPrice, members[i].DepositPaid))
		data := groupData(group)
		data["finalBalance"] = balance.StringFixed(2)
		msgs = append(msgs, notify.Message{
			UserID: members[i].UserID,
			Kind:   notify.KindGroupSuccess,
			Title:  "Group reached its goal",
			Body: fmt.Sprintf("%s reached %d participants. Final price %s, balance due %s.",
				group.Name, group.CurrentParticipants, group.CurrentPrice.StringFixed(2), balance.StringFixed(2)),
			Data: data,
		})
	}
	return msgs
}

// FailureMessages tells each member the group expired below its threshold.
func FailureMessages(group *models.Group, members []models.GroupMember) []notify.Message {
	msgs := make([]notify.Message, 0, len(members))
	for i := range members {
		data := groupData(group)
		data["refund"] = members[i].DepositPaid.StringFixed(2)
		msgs = append(msgs, notify.Message{
			UserID: members[i].UserID,
			Kind:   notify.KindGroupFailed,
			Title:  "Group did not reach its goal",
			Body: fmt.Sprintf("%s expired with %d of %d required participants. Your deposit of %s will be refunded.",
				group.Name, group.CurrentParticipants, group.MinParticipants, members[i].DepositPaid.StringFixed(2)),
			Data: data,
		})
	}
	return msgs
}

// ReminderMessages warns active members that the group ends soon.
func ReminderMessages(group *models.Group, members []models.GroupMember, status evaluator.Status) []notify.Message {
	msgs := make([]notify.Message, 0, len(members))
	for i := range members {
		data := groupData(group)
		data["timeLeft"] = status.TimeLeft
		data["spotsLeft"] = status.SpotsLeft
		msgs = append(msgs, notify.Message{
			UserID: members[i].UserID,
			Kind:   notify.KindGroupReminder,
			Title:  "Group ending soon",
			Body: fmt.Sprintf("%s: %s, %d spot(s) left. Invite friends to unlock a better price.",
				group.Name, status.TimeLeft, status.SpotsLeft),
			Data: data,
		})
	}
	return msgs
}

func cancelledMessages(group *models.Group, members []models.GroupMember) []notify.Message {
	msgs := make([]notify.Message, 0, len(members))
	for i := range members {
		msgs = append(msgs, notify.Message{
			UserID: members[i].UserID,
			Kind:   notify.KindGroupCancelled,
			Title:  "Group cancelled",
			Body: fmt.Sprintf("%s was cancelled. Your deposit of %s will be refunded.",
				group.Name, members[i].DepositPaid.StringFixed(2)),
			Data: groupData(group),
		})
	}
	return msgs
}

func completedMessages(group *models.Group, members []models.GroupMember) []notify.Message {
	msgs := make([]notify.Message, 0, len(members))
	for i := range members {
		msgs = append(msgs, notify.Message{
			UserID: members[i].UserID,
			Kind:   notify.KindGroupCompleted,
			Title:  "Group completed",
			Body:   fmt.Sprintf("Every member of %s has paid. Your order is confirmed.", group.Name),
			Data:   groupData(group),
		})
	}
	return msgs
}

func departureRefundMessage(group *models.Group, member *models.GroupMember) notify.Message {
	data := groupData(group)
	data["refund"] = member.DepositPaid.StringFixed(2)
	return notify.Message{
		UserID: member.UserID,
		Kind:   notify.KindDepositRefund,
		Title:  "Deposit refund scheduled",
		Body:   fmt.Sprintf("You left %s. Your deposit of %s will be refunded.", group.Name, member.DepositPaid.StringFixed(2)),
		Data:   data,
	}
}

func groupData(group *models.Group) map[string]any {
	return map[string]any{
		"groupId":             group.ID,
		"status":              string(group.Status),
		"currentParticipants": group.CurrentParticipants,
		"currentPrice":        group.CurrentPrice.StringFixed(2),
	}
}
