// Package order turns vendor order emails into normalized order records and
// re-queries an external source for status updates.
package order

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrParse marks a message whose content does not match the recognized
// vendor template. Per-message, never fatal to a batch.
var ErrParse = errors.New("order template not recognized")

type ParsedItem struct {
	Name      string
	SKU       string
	Quantity  int
	UnitPrice float64
}

type ParsedOrder struct {
	OrderNumber string
	OrderDate   *time.Time

	Subtotal    float64
	ShippingFee float64
	Tax         float64
	Total       float64

	ShippingName    string
	ShippingAddress string
	ShippingCity    string
	ShippingState   string
	ShippingZipCode string
	ShippingMethod  string

	BillingName    string
	BillingAddress string
	BillingCity    string
	BillingState   string
	BillingZipCode string

	EstimatedArrival string

	Items []ParsedItem
}

var (
	tagBreakRe   = regexp.MustCompile(`(?i)<\s*(?:br\s*/?|/p|/div|/td|/tr|/li|/h[1-6])\s*>`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	scriptRe     = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	spaceRe      = regexp.MustCompile(`[ \t]+`)
	orderNumRe   = regexp.MustCompile(`\b([A-Z]\d{9})\b`)
	orderDateRe  = regexp.MustCompile(`Order date:\s*(\d{2})/(\d{2})/(\d{4})`)
	moneyRe      = `\$\s*([\d,]+(?:\.\d{1,2})?)`
	subtotalRe   = regexp.MustCompile(`(?i)Subtotal:?\s*` + moneyRe)
	shippingFeeRe = regexp.MustCompile(`(?i)Shipping(?:\s*&\s*handling)?:?\s*` + moneyRe)
	taxRe        = regexp.MustCompile(`(?i)\b(?:Sales\s+)?Tax:?\s*` + moneyRe)
	totalRe      = regexp.MustCompile(`(?i)\b(?:Order\s+)?Total:?\s*` + moneyRe)
	arrivalRe    = regexp.MustCompile(`(?i)Estimated arrival:?\s*([A-Z][a-z]{2},\s+[A-Z][a-z]{2}\s+\d{1,2})`)
	methodRe     = regexp.MustCompile(`(?i)Shipping method:?\s*([^\n]+)`)
	cityLineRe   = regexp.MustCompile(`^([A-Za-z .'-]+),\s+([A-Z]{2})\s+(\d{5})(?:-\d{4})?$`)
	itemRe       = regexp.MustCompile(`Item\s+#(\d+)\s+Qty:\s*(\d+)\s+` + moneyRe)
)

// ParseEmail extracts one order from an email body (HTML or plain text).
// The order number is mandatory; everything else degrades gracefully.
func ParseEmail(body []byte) (*ParsedOrder, error) {
	text := htmlToLines(string(body))
	lines := splitLines(text)

	parsed := &ParsedOrder{}

	if m := orderNumRe.FindStringSubmatch(text); m != nil {
		parsed.OrderNumber = m[1]
	}
	if parsed.OrderNumber == "" {
		return nil, fmt.Errorf("%w: no order number", ErrParse)
	}

	if m := orderDateRe.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		parsed.OrderDate = &d
	}

	parsed.Subtotal = findMoney(subtotalRe, text)
	parsed.ShippingFee = findMoney(shippingFeeRe, text)
	parsed.Tax = findMoney(taxRe, text)
	parsed.Total = findMoney(totalRe, text)

	if m := arrivalRe.FindStringSubmatch(text); m != nil {
		parsed.EstimatedArrival = m[1]
	}
	if m := methodRe.FindStringSubmatch(text); m != nil {
		parsed.ShippingMethod = strings.TrimSpace(m[1])
	}

	if name, addr, city, state, zip, ok := findAddressBlock(lines, "ship to:"); ok {
		parsed.ShippingName = name
		parsed.ShippingAddress = addr
		parsed.ShippingCity = city
		parsed.ShippingState = state
		parsed.ShippingZipCode = zip
	}
	if name, addr, city, state, zip, ok := findAddressBlock(lines, "bill to:"); ok {
		parsed.BillingName = name
		parsed.BillingAddress = addr
		parsed.BillingCity = city
		parsed.BillingState = state
		parsed.BillingZipCode = zip
	}

	parsed.Items = findItems(lines)

	return parsed, nil
}

// htmlToLines reduces markup to plain text while preserving line structure:
// block-level closers become newlines before the remaining tags are dropped.
func htmlToLines(s string) string {
	s = scriptRe.ReplaceAllString(s, "")
	s = tagBreakRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, "")
	s = strings.NewReplacer("&amp;", "&", "&nbsp;", " ", "&lt;", "<", "&gt;", ">", "&#39;", "'", "&quot;", `"`).Replace(s)
	s = spaceRe.ReplaceAllString(s, " ")
	return s
}

func splitLines(s string) []string {
	raw := strings.Split(s, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func findMoney(re *regexp.Regexp, text string) float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

// findAddressBlock locates "<marker> <name>" followed by a street line and a
// "City, ST 12345" line.
func findAddressBlock(lines []string, marker string) (name, addr, city, state, zip string, ok bool) {
	for i, l := range lines {
		lower := strings.ToLower(l)
		if !strings.HasPrefix(lower, marker) {
			continue
		}
		name = strings.TrimSpace(l[len(marker):])
		if name == "" && i+1 < len(lines) {
			i++
			name = lines[i]
		}
		if i+2 >= len(lines) {
			return "", "", "", "", "", false
		}
		addr = lines[i+1]
		if m := cityLineRe.FindStringSubmatch(lines[i+2]); m != nil {
			return name, addr, m[1], m[2], m[3], true
		}
		return "", "", "", "", "", false
	}
	return "", "", "", "", "", false
}

// findItems matches "Item #<sku> Qty: <n> $<price>" lines; the preceding
// line is the product name.
func findItems(lines []string) []ParsedItem {
	var items []ParsedItem
	for i, l := range lines {
		m := itemRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		qty, _ := strconv.Atoi(m[2])
		price, _ := strconv.ParseFloat(strings.ReplaceAll(m[3], ",", ""), 64)
		item := ParsedItem{SKU: m[1], Quantity: qty, UnitPrice: price}
		if name := strings.TrimSpace(itemRe.ReplaceAllString(l, "")); name != "" {
			item.Name = name
		} else if i > 0 {
			item.Name = lines[i-1]
		}
		items = append(items, item)
	}
	return items
}
