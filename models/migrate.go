package models

import "gorm.io/gorm"

func AutoMigrateAll(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Shop{},
		&User{},
		&Category{},
		&Product{},
		&StockMovement{},
		&Bill{},
		&BillItem{},
		&Conversation{},
		&ConversationMember{},
		&Message{},
		&MessageDelivery{},
	)
	if err != nil {
		return err
	}
	return nil
}
