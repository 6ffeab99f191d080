package inventory

import (
	"reflect"
	"testing"
)

var testLayout = BoxLayout{Rows: 9, Cols: 9}

func TestParsePositionsRangeEqualsList(t *testing.T) {
	t.Parallel()

	fromRange, err := ParsePositions("30-32", testLayout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fromList, err := ParsePositions("30,31,32", testLayout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(fromRange, fromList) {
		t.Fatalf("range %v != list %v", fromRange, fromList)
	}
	if !reflect.DeepEqual(fromRange, []int{30, 31, 32}) {
		t.Fatalf("unexpected positions: %v", fromRange)
	}
}

func TestParsePositionsReversedRangeRejected(t *testing.T) {
	t.Parallel()

	if _, err := ParsePositions("32-30", testLayout); err == nil {
		t.Fatal("expected error for reversed range")
	}
}

func TestParsePositionsDeduplicatesAndSorts(t *testing.T) {
	t.Parallel()

	got, err := ParsePositions("5,3,5,1", testLayout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []int{1, 3, 5}) {
		t.Fatalf("unexpected positions: %v", got)
	}
}

func TestParsePositionsOutOfRange(t *testing.T) {
	t.Parallel()

	if _, err := ParsePositions("82", testLayout); err == nil {
		t.Fatal("expected out-of-range error for position 82 in 9x9 layout")
	}
	if _, err := ParsePositions("0", testLayout); err == nil {
		t.Fatal("expected out-of-range error for position 0")
	}
}

func TestCoercePositions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input any
		want  []int
	}{
		{"int", 7, []int{7}},
		{"float from json", float64(12), []int{12}},
		{"string range", "4-6", []int{4, 5, 6}},
		{"mixed list", []any{float64(2), "9"}, []int{2, 9}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := CoercePositions(tc.input, testLayout)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}

	if _, err := CoercePositions(1.5, testLayout); err == nil {
		t.Fatal("expected error for fractional position")
	}
	if _, err := CoercePositions(nil, testLayout); err == nil {
		t.Fatal("expected error for nil positions")
	}
}
