package interactive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeParsedFields_RoastingDatePrefersSwedishLabel(t *testing.T) {
	data := map[string]interface{}{}
	mergeParsedFields(data, "find the roast date", "Rostningsdatum 2025-07-10 other 2025-01-01")
	assert.Equal(t, "2025-07-10", data["roastingDate"])
}

func TestMergeParsedFields_RoastingDateFallsBackToLatestDate(t *testing.T) {
	data := map[string]interface{}{}
	mergeParsedFields(data, "what is the roast date", "seen on 2025-01-01 and 2025-07-10 and 2025-03-03")
	assert.Equal(t, "2025-07-10", data["roastingDate"])
	assert.ElementsMatch(t, []string{"2025-07-10", "2025-03-03", "2025-01-01"}, data["allDatesFound"])
}

func TestMergeParsedFields_PriceKr(t *testing.T) {
	data := map[string]interface{}{}
	mergeParsedFields(data, "what is the price", "165 kr per bag")
	assert.Equal(t, 165, data["price"])
	assert.Equal(t, "SEK", data["currency"])
}

func TestMergeParsedFields_PriceUSD(t *testing.T) {
	data := map[string]interface{}{}
	mergeParsedFields(data, "get the cost", "$19.99 total")
	assert.Equal(t, 19.99, data["price"])
	assert.Equal(t, "USD", data["currency"])
}

func TestMergeParsedFields_TitleTag(t *testing.T) {
	data := map[string]interface{}{}
	mergeParsedFields(data, "get the page title", "<title>Example Domain</title>")
	assert.Equal(t, "Example Domain", data["title"])
}

func TestMergeParsedFields_H1Fallback(t *testing.T) {
	data := map[string]interface{}{}
	mergeParsedFields(data, "get the product name", "<h1 class=\"x\">Dark Roast</h1>")
	assert.Equal(t, "Dark Roast", data["title"])
}

func TestMergeParsedFields_IrrelevantInstructionLeavesDataEmpty(t *testing.T) {
	data := map[string]interface{}{}
	mergeParsedFields(data, "get the stock status", "2025-07-10 $19.99 <title>X</title>")
	assert.Empty(t, data)
}
