package validation

import (
	"fmt"
	"regexp"

	"github.com/iudanet/docsync/internal/models"
)

// DatabasePattern допустимое имя базы: латинские буквы, цифры, '_' и '-'
var DatabasePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// CollectionPattern допустимое имя коллекции: как у базы, плюс точка
var CollectionPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

const (
	// MaxDatabaseLen максимальная длина имени базы
	MaxDatabaseLen = 64
	// MaxCollectionLen максимальная длина имени коллекции
	MaxCollectionLen = 128
)

// ValidateDatabase проверяет имя базы данных
func ValidateDatabase(name string) error {
	if name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if len(name) > MaxDatabaseLen {
		return fmt.Errorf("database name must not exceed %d characters", MaxDatabaseLen)
	}
	if !DatabasePattern.MatchString(name) {
		return fmt.Errorf("database name can only contain letters, numbers, underscores (_) and hyphens (-)")
	}
	return nil
}

// ValidateCollection проверяет имя коллекции
func ValidateCollection(name string) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}
	if len(name) > MaxCollectionLen {
		return fmt.Errorf("collection name must not exceed %d characters", MaxCollectionLen)
	}
	if !CollectionPattern.MatchString(name) {
		return fmt.Errorf("collection name can only contain letters, numbers, underscores (_), hyphens (-) and dots (.)")
	}
	return nil
}

// ValidateNamespace проверяет обе части namespace
func ValidateNamespace(ns models.Namespace) error {
	if err := ValidateDatabase(ns.Database); err != nil {
		return err
	}
	return ValidateCollection(ns.Collection)
}
