package compliance

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/coverdesk/coverdesk/internal/model"
)

// usd formats whole-dollar amounts with US grouping for gap descriptions
// and insight text.
var usd = message.NewPrinter(language.AmericanEnglish)

// formatMoney renders a whole-dollar amount as "$1,000,000".
func formatMoney(m model.Money) string {
	return usd.Sprintf("$%d", int64(m))
}

// formatRequired renders a required minimum, including the statutory case.
func formatRequired(r model.RequiredAmount) string {
	if r.Statutory {
		return "Statutory"
	}
	return formatMoney(r.Amount)
}
