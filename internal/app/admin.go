package app

import (
	"fmt"

	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"gorm.io/gorm"
)

// HasAdmin reports whether at least one administrator account exists.
func HasAdmin(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.User{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.User{}).Where("role = ?", models.UserRoleAdmin).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}
