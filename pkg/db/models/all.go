package models

// All lists every table model, in dependency order, for AutoMigrate in tests
// and the sqlite dev database.
func All() []any {
	return []any{
		&Product{},
		&ProductVariant{},
		&Location{},
		&StockMovement{},
		&InventorySummary{},
		&PriceEntry{},
		&Order{},
		&OrderLine{},
		&Payment{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
