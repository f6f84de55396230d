package snapshot

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want []int
	}{
		{name: "plain", body: "0|3|12", want: []int{0, 3, 12}},
		{name: "single", body: "7", want: []int{7}},
		{name: "whitespace", body: " 1 | 2 |3 \n", want: []int{1, 2, 3}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.body)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.body, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Parse(%q) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}

func TestParseMarkup(t *testing.T) {
	t.Parallel()
	for _, body := range []string{
		"<HTML><body>login</body></HTML>",
		"<!DOCTYPE html><p>expired</p>",
		"prefix <html>",
	} {
		if _, err := Parse(body); !errors.Is(err, ErrMarkup) {
			t.Fatalf("Parse(%q) err = %v, want ErrMarkup", body, err)
		}
	}
}

func TestParseUnparseable(t *testing.T) {
	t.Parallel()
	for _, body := range []string{"1|x|3", "-1|2", "", "error: rate limited"} {
		_, err := Parse(body)
		var ue *UnparseableError
		if !errors.As(err, &ue) {
			t.Fatalf("Parse(%q) err = %v, want *UnparseableError", body, err)
		}
		if ue.Raw != body {
			t.Fatalf("raw text not preserved: %q", ue.Raw)
		}
	}
}

func TestLabelFallback(t *testing.T) {
	t.Parallel()
	labels := map[int]string{0: LabelOrders}
	if got := Label(labels, 0); got != "orders" {
		t.Fatalf("Label(0) = %q", got)
	}
	if got := Label(labels, 9); got != "field 9" {
		t.Fatalf("Label(9) = %q", got)
	}
}

func TestRankOrdering(t *testing.T) {
	t.Parallel()
	if Rank(LabelOrders, 5) >= Rank(LabelReviews, 0) {
		t.Fatal("orders must sort before reviews regardless of position")
	}
	if Rank("field 8", 8) <= Rank(LabelReviews, 0) {
		t.Fatal("unmapped labels must sort after all known labels")
	}
}
