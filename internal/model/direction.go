package model

// Direction is the inferred flow of money relative to the company.
type Direction string

const (
	DirectionUndetermined Direction = ""
	DirectionIncome       Direction = "income"
	DirectionExpense      Direction = "expense"
	DirectionTransfer     Direction = "transfer"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionUndetermined, DirectionIncome, DirectionExpense, DirectionTransfer:
		return true
	}
	return false
}

// Determined reports whether d is income, expense or transfer.
func (d Direction) Determined() bool {
	return d != DirectionUndetermined && d.Valid()
}

// ArticleCategory returns the article category matching d, or "" for
// transfers and undetermined directions.
func (d Direction) ArticleCategory() ArticleCategory {
	switch d {
	case DirectionIncome:
		return ArticleIncome
	case DirectionExpense:
		return ArticleExpense
	}
	return ""
}

// String returns "undetermined" for the zero value.
func (d Direction) String() string {
	if d == DirectionUndetermined {
		return "undetermined"
	}
	return string(d)
}

// ParseDirection accepts the String form of a direction.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "", "undetermined":
		return DirectionUndetermined, true
	case "income", "expense", "transfer":
		return Direction(s), true
	}
	return DirectionUndetermined, false
}
