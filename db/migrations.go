package db

import (
	"fmt"

	"gorm.io/gorm"

	"tapspot/models"
)

// Migrate создает и обновляет таблицы. Уникальные индексы для пары
// собеседников и для лайков объявлены в тегах моделей.
func Migrate(orm *gorm.DB) error {
	if err := orm.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
