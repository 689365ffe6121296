// Package models defines the directory entities persisted by the store.
package models

// AllModels returns every model registered for schema auto-migration.
func AllModels() []any {
	return []any{
		&User{},
		&Group{},
		&SubAdmin{},
	}
}
