package lifecycle

import (
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/evaluator"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/router-for-me/GroupBuyBusiness/internal/pricing"
	"github.com/shopspring/decimal"
)

// ProductSummary is the product excerpt embedded in group views.
type ProductSummary struct {
	ID             uint64          `json:"id"`
	Name           string          `json:"name"`
	PriceSolo      decimal.Decimal `json:"priceSolo"`
	PriceGroupBase decimal.Decimal `json:"priceGroupBase"`
}

// Derived holds the evaluator fields flattened into group views.
type Derived = evaluator.Status

// GroupView is a group decorated with its derived status.
type GroupView struct {
	ID                  uint64                `json:"id"`
	ProductID           uint64                `json:"productId"`
	Product             *ProductSummary       `json:"product,omitempty"`
	Name                string                `json:"name"`
	MinParticipants     int                   `json:"minParticipants"`
	MaxParticipants     int                   `json:"maxParticipants"`
	CurrentParticipants int                   `json:"currentParticipants"`
	EndDate             time.Time             `json:"endDate"`
	BasePrice           decimal.Decimal       `json:"basePrice"`
	CurrentPrice        decimal.Decimal       `json:"currentPrice"`
	DiscountCurve       []models.DiscountTier `json:"discountCurve"`
	Status              models.GroupStatus    `json:"status"`
	CompletedAt         *time.Time            `json:"completedAt,omitempty"`
	CreatedBy           uint64                `json:"createdBy"`
	CreatedAt           time.Time             `json:"createdAt"`
	UpdatedAt           time.Time             `json:"updatedAt"`
	Derived
}

// MemberView is one membership row.
type MemberView struct {
	ID                 uint64               `json:"id"`
	GroupID            uint64               `json:"groupId"`
	UserID             uint64               `json:"userId"`
	FirstName          string               `json:"firstName,omitempty"`
	LastName           string               `json:"lastName,omitempty"`
	DepositPaid        decimal.Decimal      `json:"depositPaid"`
	DepositStatus      models.PaymentStatus `json:"depositStatus"`
	FinalPaid          decimal.Decimal      `json:"finalPaid"`
	FinalPaymentStatus models.PaymentStatus `json:"finalPaymentStatus"`
	PaymentMethod      string               `json:"paymentMethod,omitempty"`
	JoinedAt           time.Time            `json:"joinedAt"`
	LeftAt             *time.Time           `json:"leftAt,omitempty"`
}

// GroupDetail is a group with its membership history.
type GroupDetail struct {
	GroupView
	Members []MemberView `json:"members"`
}

// UserGroupView is a group seen from one member's side.
type UserGroupView struct {
	GroupView
	MemberSince        time.Time            `json:"memberSince"`
	DepositPaid        decimal.Decimal      `json:"depositPaid"`
	DepositStatus      models.PaymentStatus `json:"depositStatus"`
	FinalPaymentStatus models.PaymentStatus `json:"finalPaymentStatus"`
	FinalBalance       decimal.Decimal      `json:"finalBalance"`
	LeftAt             *time.Time           `json:"leftAt,omitempty"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// GroupPage is one page of groups.
type GroupPage struct {
	Groups     []GroupView `json:"groups"`
	Pagination Pagination  `json:"pagination"`
}

// JoinResult is returned by a successful join.
type JoinResult struct {
	Group   GroupView       `json:"group"`
	Member  MemberView      `json:"member"`
	Deposit decimal.Decimal `json:"deposit"`
}

// FinalPaymentResult is returned by a successful final balance payment.
type FinalPaymentResult struct {
	Group  GroupView       `json:"group"`
	Member MemberView      `json:"member"`
	Amount decimal.Decimal `json:"amount"`
}

func newGroupView(group *models.Group, now time.Time) GroupView {
	view := GroupView{
		ID:                  group.ID,
		ProductID:           group.ProductID,
		Name:                group.Name,
		MinParticipants:     group.MinParticipants,
		MaxParticipants:     group.MaxParticipants,
		CurrentParticipants: group.CurrentParticipants,
		EndDate:             group.EndDate,
		BasePrice:           group.BasePrice,
		CurrentPrice:        group.CurrentPrice,
		DiscountCurve:       group.Tiers(),
		Status:              group.Status,
		CompletedAt:         group.CompletedAt,
		CreatedBy:           group.CreatedBy,
		CreatedAt:           group.CreatedAt,
		UpdatedAt:           group.UpdatedAt,
		Derived: evaluator.Evaluate(evaluator.Snapshot{
			MinParticipants:     group.MinParticipants,
			MaxParticipants:     group.MaxParticipants,
			CurrentParticipants: group.CurrentParticipants,
			EndDate:             group.EndDate,
		}, now),
	}
	if view.DiscountCurve == nil {
		view.DiscountCurve = []models.DiscountTier{}
	}
	if group.Product.ID != 0 {
		view.Product = &ProductSummary{
			ID:             group.Product.ID,
			Name:           group.Product.Name,
			PriceSolo:      group.Product.PriceSolo,
			PriceGroupBase: group.Product.PriceGroupBase,
		}
	}
	return view
}

func newMemberView(member *models.GroupMember) MemberView {
	return MemberView{
		ID:                 member.ID,
		GroupID:            member.GroupID,
		UserID:             member.UserID,
		FirstName:          member.User.FirstName,
		LastName:           member.User.LastName,
		DepositPaid:        member.DepositPaid,
		DepositStatus:      member.DepositStatus,
		FinalPaid:          member.FinalPaid,
		FinalPaymentStatus: member.FinalPaymentStatus,
		PaymentMethod:      member.PaymentMethod,
		JoinedAt:           member.JoinedAt,
		LeftAt:             member.LeftAt,
	}
}

func newUserGroupView(group *models.Group, member *models.GroupMember, now time.Time) UserGroupView {
	return UserGroupView{
		GroupView:          newGroupView(group, now),
		MemberSince:        member.JoinedAt,
		DepositPaid:        member.DepositPaid,
		DepositStatus:      member.DepositStatus,
		FinalPaymentStatus: member.FinalPaymentStatus,
		FinalBalance:       pricing.Round(pricing.ComputeFinalBalance(group.CurrentPrice, member.DepositPaid)),
		LeftAt:             member.LeftAt,
	}
}
