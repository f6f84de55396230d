package web

import (
	"fmt"
	"html"
	"strconv"
	"strings"
)

// pickField returns the first non-empty value among candidate keys. Webhook
// payloads come from user-authored capture scripts, so field names vary.
func pickField(o map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := o[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			if x != "" {
				return x
			}
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		default:
			return fmt.Sprint(x)
		}
	}
	return ""
}

// FormatVND renders an amount with dot thousand separators and the đ
// suffix (e.g. 1250000 -> "1.250.000đ"). Unparseable input passes through.
func FormatVND(raw string) string {
	if raw == "" {
		return "N/A"
	}
	// Vietnamese convention: dot as thousands separator, comma as decimal.
	norm := strings.ReplaceAll(raw, ".", "")
	norm = strings.ReplaceAll(norm, ",", ".")
	f, err := strconv.ParseFloat(norm, 64)
	if err != nil {
		return raw
	}
	n := int64(f)
	s := strconv.FormatInt(n, 10)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ".")
	if neg {
		out = "-" + out
	}
	return out + "đ"
}

// orderMessage builds the HTML notification for one webhook order payload.
func orderMessage(shopName string, o map[string]any) string {
	get := func(keys ...string) string {
		v := pickField(o, keys...)
		if v == "" {
			return "N/A"
		}
		return html.EscapeString(v)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🛒 <b>New order — %s</b>\n", html.EscapeString(shopName))
	fmt.Fprintf(&b, "• Code: <b>%s</b>\n", get("order_id", "id", "code", "order_code"))
	fmt.Fprintf(&b, "• Date: <b>%s</b>\n", get("created_at", "date", "time"))
	fmt.Fprintf(&b, "• Buyer: <b>%s</b>\n", get("buyer_name", "buyer", "customer", "username"))
	fmt.Fprintf(&b, "• Item: <b>%s</b>\n", get("product_name", "item_name", "name", "title"))
	qty := pickField(o, "quantity", "qty", "count")
	if qty == "" {
		qty = "1"
	}
	price := FormatVND(pickField(o, "price", "unit_price"))
	total := FormatVND(pickField(o, "total", "grand_total", "amount", "price_total"))
	fmt.Fprintf(&b, "• Qty: <b>%s</b>  • Price: <b>%s</b>  • Total: <b>%s</b>\n",
		html.EscapeString(qty), html.EscapeString(price), html.EscapeString(total))
	fmt.Fprintf(&b, "• Status: <b>%s</b>", get("status", "state"))
	return b.String()
}
