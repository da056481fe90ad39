package storage

import "tally/internal/core"

// defaultCategories is the seed list ensured for every owner on first use.
// EnsureDefaultCategories reconciles description, color and kind on rows
// whose (owner, name) already exist, so edits here propagate.
var defaultCategories = []core.Category{
	{Name: "dining", Description: "meals, drinks and groceries", Color: "#BF616A", Kind: core.Expense},
	{Name: "transport", Description: "public transport, fuel and rides", Color: "#D08770", Kind: core.Expense},
	{Name: "shopping", Description: "everyday purchases", Color: "#EBCB8B", Kind: core.Expense},
	{Name: "housing", Description: "rent, mortgage and utilities", Color: "#A3BE8C", Kind: core.Expense},
	{Name: "entertainment", Description: "leisure, media and hobbies", Color: "#B48EAD", Kind: core.Expense},
	{Name: "healthcare", Description: "doctors, pharmacy and insurance", Color: "#88C0D0", Kind: core.Expense},
	{Name: "other", Description: "everything without a better category", Color: "#4C566A", Kind: core.Expense},
	{Name: "salary", Description: "recurring wages", Color: "#8FBCBB", Kind: core.Income},
	{Name: "bonus", Description: "one-off income", Color: "#5E81AC", Kind: core.Income},
	{Name: "investment", Description: "asset purchases, sales and conversions", Color: "#9ADCFF", Kind: core.Investment},
}

// defaultAssets seeds the global asset table. CNY is the implicit asset of
// plain income/expense bills.
var defaultAssets = []core.Asset{
	{Name: "CNY", Description: "default cash currency"},
}
