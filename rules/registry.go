package rules

// Condition vocabulary. These tables are the single source of truth for
// which leaf fields and operators a condition tree may use; the validator
// and the renderer both read them. They are constructed once and never
// mutated.

// Combinator operators for grouped conditions.
const (
	CombinatorAnd = "AND"
	CombinatorOr  = "OR"
)

// conditionFields is the closed set of facts a leaf condition may inspect.
var conditionFields = map[string]struct{}{
	"line.productId":       {},
	"line.quantity":        {},
	"line.categoryId":      {},
	"line.unitPrice":       {},
	"customer.type":        {},
	"customer.email":       {},
	"customer.loyaltyTier": {},
	"customer.ordersCount": {},
	"customer.city":        {},
	"now":                  {},
}

// conditionOperators is the closed set of comparison operators.
var conditionOperators = map[string]struct{}{
	"==":         {},
	"!=":         {},
	">":          {},
	"<":          {},
	">=":         {},
	"<=":         {},
	"endsWith":   {},
	"startsWith": {},
	"contains":   {},
}

// fieldLabels maps registry fields to display names for rendering.
var fieldLabels = map[string]string{
	"line.productId":       "Product ID",
	"line.quantity":        "Quantity",
	"line.categoryId":      "Category ID",
	"line.unitPrice":       "Unit Price",
	"customer.type":        "Customer Type",
	"customer.email":       "Customer Email",
	"customer.loyaltyTier": "Loyalty Tier",
	"customer.ordersCount": "Orders Count",
	"customer.city":        "Customer City",
	"now":                  "Current Time",
}

// operatorLabels maps comparison operators to display names for rendering.
var operatorLabels = map[string]string{
	"==":         "equals",
	"!=":         "not equals",
	">":          "greater than",
	"<":          "less than",
	">=":         "greater than or equal",
	"<=":         "less than or equal",
	"endsWith":   "ends with",
	"startsWith": "starts with",
	"contains":   "contains",
}

// ValidField reports whether f is in the condition field registry.
func ValidField(f string) bool {
	_, ok := conditionFields[f]
	return ok
}

// ValidOperator reports whether op is in the comparison operator registry.
func ValidOperator(op string) bool {
	_, ok := conditionOperators[op]
	return ok
}

// FieldLabel returns the display name for a field. Fields without a display
// name render with their raw registry name.
func FieldLabel(f string) string {
	if label, ok := fieldLabels[f]; ok {
		return label
	}
	return f
}

// OperatorLabel returns the display name for an operator, falling back to
// the raw operator.
func OperatorLabel(op string) string {
	if label, ok := operatorLabels[op]; ok {
		return label
	}
	return op
}
