package interactive

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	roastingDateRE = regexp.MustCompile(`Rostningsdatum\s+(\d{4}-\d{2}-\d{2})`)
	anyDateRE      = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	priceKrRE      = regexp.MustCompile(`(\d+)\s*kr`)
	priceUSDRE     = regexp.MustCompile(`\$(\d+\.?\d*)`)
	titleTagRE     = regexp.MustCompile(`(?is)<title>(.*?)</title>`)
	h1TagRE        = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
)

// mergeParsedFields applies the instruction-aware data-extraction regexes to
// one successful extract step's result and merges whatever they find into
// extractedData. text is the stringified extracted value.
func mergeParsedFields(extractedData map[string]interface{}, instruction string, extracted interface{}) {
	text := fmt.Sprintf("%v", extracted)
	lowerInstruction := strings.ToLower(instruction)

	if strings.Contains(lowerInstruction, "roast") || strings.Contains(lowerInstruction, "date") {
		parseDates(extractedData, text)
	}
	if strings.Contains(lowerInstruction, "price") || strings.Contains(lowerInstruction, "cost") {
		parsePrice(extractedData, text)
	}
	if strings.Contains(lowerInstruction, "title") || strings.Contains(lowerInstruction, "name") {
		parseTitle(extractedData, text)
	}
}

func parseDates(extractedData map[string]interface{}, text string) {
	if m := roastingDateRE.FindStringSubmatch(text); m != nil {
		extractedData["roastingDate"] = m[1]
		return
	}
	dates := anyDateRE.FindAllString(text, -1)
	if len(dates) == 0 {
		return
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	extractedData["roastingDate"] = dates[0]
	extractedData["allDatesFound"] = dates
}

func parsePrice(extractedData map[string]interface{}, text string) {
	if m := priceKrRE.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			extractedData["price"] = v
			extractedData["currency"] = "SEK"
			return
		}
	}
	if m := priceUSDRE.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			extractedData["price"] = v
			extractedData["currency"] = "USD"
		}
	}
}

func parseTitle(extractedData map[string]interface{}, text string) {
	if m := titleTagRE.FindStringSubmatch(text); m != nil {
		extractedData["title"] = strings.TrimSpace(m[1])
		return
	}
	if m := h1TagRE.FindStringSubmatch(text); m != nil {
		extractedData["title"] = strings.TrimSpace(m[1])
	}
}
