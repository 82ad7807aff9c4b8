package model

// CategoryUsage summarizes how one category is used within an owner's data.
type CategoryUsage struct {
	Name   string
	Manual int // Transactions categorized by hand
	ByRule int // Transactions categorized by a rule
	Rules  int // Rules producing the category
}
