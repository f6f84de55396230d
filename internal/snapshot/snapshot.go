// Package snapshot parses the counter endpoint's responses. A healthy
// response is a |-separated list of non-negative integers; a markup page
// means the upstream session expired.
package snapshot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMarkup signals an HTML/doctype body: the captured credential or session
// is no longer accepted upstream.
var ErrMarkup = errors.New("markup response (session expired)")

// UnparseableError carries the raw body through for visibility in the
// throttled error notification.
type UnparseableError struct {
	Raw string
}

func (e *UnparseableError) Error() string {
	return fmt.Sprintf("unparseable counter response: %q", clip(e.Raw, 120))
}

// Parse classifies a counter body. Pure function of the input text.
func Parse(body string) ([]int, error) {
	trimmed := strings.TrimSpace(body)
	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype") {
		return nil, ErrMarkup
	}

	parts := strings.Split(trimmed, "|")
	vec := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, &UnparseableError{Raw: body}
		}
		vec = append(vec, n)
	}
	return vec, nil
}

// Well-known counter categories, in notification priority order.
const (
	LabelOrders        = "orders"
	LabelServiceOrders = "service-orders"
	LabelPreOrders     = "pre-orders"
	LabelComplaints    = "complaints"
	LabelMessages      = "messages"
	LabelReviews       = "reviews"
)

// Priority is the fixed section order for alert lines. Unmapped labels sort
// after all of these.
var Priority = []string{
	LabelOrders,
	LabelServiceOrders,
	LabelPreOrders,
	LabelComplaints,
	LabelMessages,
	LabelReviews,
}

// DefaultLabels is the position mapping observed on the storefront counter
// feed. Accounts can override any position in config.
var DefaultLabels = map[int]string{
	0: LabelOrders,
	1: LabelServiceOrders,
	2: LabelPreOrders,
	3: LabelComplaints,
	4: LabelMessages,
	5: LabelReviews,
}

// Label resolves position i against the mapping, falling back to a
// synthetic "field N" name.
func Label(labels map[int]string, i int) string {
	if l, ok := labels[i]; ok && l != "" {
		return l
	}
	return fmt.Sprintf("field %d", i)
}

// IsOrderLabel reports whether a label contributes to daily order totals.
func IsOrderLabel(label string) bool {
	switch label {
	case LabelOrders, LabelServiceOrders, LabelPreOrders:
		return true
	}
	return false
}

// Rank returns the sort key of a label in the composed notification:
// priority index for known labels, then position order for the rest.
func Rank(label string, position int) int {
	for i, l := range Priority {
		if l == label {
			return i
		}
	}
	return len(Priority) + position
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
