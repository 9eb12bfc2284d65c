package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/router-for-me/GroupBuyBusiness/internal/apperr"
	"github.com/router-for-me/GroupBuyBusiness/internal/db"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"gorm.io/gorm"
)

// ListFilter narrows a group listing. Zero values match everything.
type ListFilter struct {
	Status    models.GroupStatus
	ProductID uint64
	CreatedBy uint64
	Search    string
	Page      int
	Limit     int
}

// GetGroup returns a group with all of its memberships.
func (s *Service) GetGroup(ctx context.Context, groupID uint64) (detail *GroupDetail, err error) {
	const op = "lifecycle.GetGroup"
	ctx, span := startSpan(ctx, op, groupAttr(groupID))
	defer func() { endSpan(span, err) }()

	group, errLoad := s.loadGroup(ctx, s.db, op, groupID)
	if errLoad != nil {
		return nil, errLoad
	}
	var members []models.GroupMember
	if errFind := s.db.WithContext(ctx).
		Preload("User").
		Where("group_id = ?", groupID).
		Order("joined_at ASC, id ASC").
		Find(&members).Error; errFind != nil {
		return nil, fmt.Errorf("%s: load members: %w", op, errFind)
	}

	detail = &GroupDetail{
		GroupView: newGroupView(group, s.now()),
		Members:   make([]MemberView, 0, len(members)),
	}
	for i := range members {
		detail.Members = append(detail.Members, newMemberView(&members[i]))
	}
	return detail, nil
}

// ListGroups returns one page of groups, newest first.
func (s *Service) ListGroups(ctx context.Context, filter ListFilter) (page *GroupPage, err error) {
	const op = "lifecycle.ListGroups"
	ctx, span := startSpan(ctx, op)
	defer func() { endSpan(span, err) }()

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Validation(op, "unknown status %q", filter.Status)
	}
	pageNum, limit := s.normalizePage(filter.Page, filter.Limit)

	q := s.db.WithContext(ctx).Model(&models.Group{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ProductID != 0 {
		q = q.Where("product_id = ?", filter.ProductID)
	}
	if filter.CreatedBy != 0 {
		q = q.Where("created_by = ?", filter.CreatedBy)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		q = q.Where(db.CaseInsensitiveLikeExpr(q, "name"), db.LikePattern(q, search))
	}

	var total int64
	if errCount := q.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		return nil, fmt.Errorf("%s: count groups: %w", op, errCount)
	}
	var groups []models.Group
	if errFind := q.Session(&gorm.Session{}).
		Preload("Product").
		Order("created_at DESC, id DESC").
		Offset((pageNum - 1) * limit).
		Limit(limit).
		Find(&groups).Error; errFind != nil {
		return nil, fmt.Errorf("%s: list groups: %w", op, errFind)
	}

	now := s.now()
	page = &GroupPage{
		Groups: make([]GroupView, 0, len(groups)),
		Pagination: Pagination{
			Page:       pageNum,
			Limit:      limit,
			Total:      total,
			TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		},
	}
	for i := range groups {
		page.Groups = append(page.Groups, newGroupView(&groups[i], now))
	}
	return page, nil
}

// ListUserGroups returns the groups userID belongs to. With activeOnly,
// departed memberships are omitted.
func (s *Service) ListUserGroups(ctx context.Context, userID uint64, activeOnly bool) (views []UserGroupView, err error) {
	const op = "lifecycle.ListUserGroups"
	ctx, span := startSpan(ctx, op, userAttr(userID))
	defer func() { endSpan(span, err) }()

	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if activeOnly {
		q = q.Where("left_at IS NULL")
	}
	var members []models.GroupMember
	if errFind := q.Order("joined_at DESC, id DESC").Find(&members).Error; errFind != nil {
		return nil, fmt.Errorf("%s: list memberships: %w", op, errFind)
	}
	if len(members) == 0 {
		return []UserGroupView{}, nil
	}

	ids := make([]uint64, 0, len(members))
	for i := range members {
		ids = append(ids, members[i].GroupID)
	}
	var groups []models.Group
	if errFind := s.db.WithContext(ctx).Preload("Product").Where("id IN ?", ids).Find(&groups).Error; errFind != nil {
		return nil, fmt.Errorf("%s: load groups: %w", op, errFind)
	}
	byID := make(map[uint64]*models.Group, len(groups))
	for i := range groups {
		byID[groups[i].ID] = &groups[i]
	}

	now := s.now()
	views = make([]UserGroupView, 0, len(members))
	for i := range members {
		group, ok := byID[members[i].GroupID]
		if !ok {
			continue
		}
		views = append(views, newUserGroupView(group, &members[i], now))
	}
	return views, nil
}

func (s *Service) normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}
	return page, limit
}
