package enums

import "fmt"

// ComplaintCategory classifies why a buyer opened a ticket.
type ComplaintCategory string

const (
	ComplaintCategoryNotDelivered   ComplaintCategory = "not_delivered"
	ComplaintCategoryNotAsDescribed ComplaintCategory = "not_as_described"
	ComplaintCategoryDefective      ComplaintCategory = "defective"
	ComplaintCategoryFraud          ComplaintCategory = "fraud"
	ComplaintCategoryOther          ComplaintCategory = "other"
)

var validComplaintCategories = []ComplaintCategory{
	ComplaintCategoryNotDelivered,
	ComplaintCategoryNotAsDescribed,
	ComplaintCategoryDefective,
	ComplaintCategoryFraud,
	ComplaintCategoryOther,
}

// IsValid reports whether the value is a known ComplaintCategory.
func (c ComplaintCategory) IsValid() bool {
	for _, candidate := range validComplaintCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseComplaintCategory converts raw input into a ComplaintCategory.
func ParseComplaintCategory(value string) (ComplaintCategory, error) {
	for _, candidate := range validComplaintCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid complaint category %q", value)
}
