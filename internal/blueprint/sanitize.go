package blueprint

import (
	"regexp"
	"slices"

	"github.com/nextmonth/smartsite/internal/model"
)

// BusinessNamePlaceholder replaces the source business name in
// tenant-agnostic exports.
const BusinessNamePlaceholder = "{{businessName}}"

var businessName = regexp.MustCompile(`(?i)Progress\s+Accountants`)

// Sanitize returns copies of decls with the instance id cleared and the
// business name replaced in free-text fields.
func Sanitize(decls []*model.SOTDeclaration) []*model.SOTDeclaration {
	out := make([]*model.SOTDeclaration, 0, len(decls))
	for _, d := range decls {
		c := *d
		c.InstanceID = ""
		c.ToolsSupported = slices.Clone(d.ToolsSupported)
		c.InstanceType = ReplaceBusinessName(c.InstanceType)
		out = append(out, &c)
	}
	return out
}

// ReplaceBusinessName substitutes the placeholder for the business name.
func ReplaceBusinessName(s string) string {
	return businessName.ReplaceAllString(s, BusinessNamePlaceholder)
}
