package notify

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// groupIndian inserts separators the Indian way: the last three digits, then pairs.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return strings.Join(parts, ",") + "," + tail
}

// Rupees formats a whole-rupee amount, e.g. 150000 -> "₹1,50,000".
func Rupees(amount int64) string {
	sign := ""
	if amount < 0 {
		sign, amount = "-", -amount
	}
	return sign + "₹" + groupIndian(strconv.FormatInt(amount, 10))
}

// RupeesDecimal formats with paise, e.g. 1234.5 -> "₹1,234.50".
func RupeesDecimal(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign, d = "-", d.Neg()
	}
	whole, frac, _ := strings.Cut(d.StringFixed(2), ".")
	return sign + "₹" + groupIndian(whole) + "." + frac
}

// RipLimit formats a currency amount, e.g. 1500 -> "1,500 RL".
func RipLimit(amount int64) string {
	return groupIndian(strconv.FormatInt(amount, 10)) + " RL"
}

// Plural renders "1 bidder" / "3 bidders".
func Plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
