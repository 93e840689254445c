package fees

import (
	"errors"
	"testing"
)

func TestWithoutFee_TabulatedValues(t *testing.T) {
	c := NewCalculator(nil)
	cases := []struct {
		price, want int
	}{
		{3, 1},
		{12, 10},
		{21, 19},  // 0.21 -> 0.19
		{22, 19},  // first table entry off the price-2 diagonal
		{44, 39},  // 0.44 -> 0.39
		{45, 39},
		{66, 59}, // exact crossover, still tabulated
	}
	for _, tc := range cases {
		got, err := c.WithoutFee(tc.price)
		if err != nil {
			t.Fatalf("WithoutFee(%d): %v", tc.price, err)
		}
		if got != tc.want {
			t.Fatalf("WithoutFee(%d)=%d want %d", tc.price, got, tc.want)
		}
	}
}

func TestWithoutFee_UntabulatedLowPrice(t *testing.T) {
	c := NewCalculator(nil)
	for _, price := range []int{0, 1, 2} {
		if _, err := c.WithoutFee(price); !errors.Is(err, ErrUnsupportedPrice) {
			t.Fatalf("WithoutFee(%d) err=%v want ErrUnsupportedPrice", price, err)
		}
	}
}

func TestWithoutFee_AboveCrossover(t *testing.T) {
	c := NewCalculator(nil)
	// First formulaic price.
	got, err := c.WithoutFee(67)
	if err != nil {
		t.Fatalf("WithoutFee(67): %v", err)
	}
	if got != 57 {
		t.Fatalf("WithoutFee(67)=%d want 57", got)
	}
	// Both fee floors always apply: net <= price and fee >= 2 cents.
	for price := 67; price <= 5000; price++ {
		net, err := c.WithoutFee(price)
		if err != nil {
			t.Fatalf("WithoutFee(%d): %v", price, err)
		}
		if net > price {
			t.Fatalf("WithoutFee(%d)=%d exceeds price", price, net)
		}
		if price-net < 2 {
			t.Fatalf("WithoutFee(%d)=%d fee below 2 cents", price, net)
		}
	}
}

func TestWithoutFee_CustomTable(t *testing.T) {
	c := NewCalculator(map[int]int{10: 7})
	got, err := c.WithoutFee(10)
	if err != nil {
		t.Fatalf("WithoutFee(10): %v", err)
	}
	if got != 7 {
		t.Fatalf("WithoutFee(10)=%d want 7", got)
	}
	if _, err := c.WithoutFee(21); !errors.Is(err, ErrUnsupportedPrice) {
		t.Fatalf("expected ErrUnsupportedPrice outside the custom table, got %v", err)
	}
}

func TestWithFee_Monotone(t *testing.T) {
	c := NewCalculator(nil)
	if got := c.WithFee(1); got != 3 {
		t.Fatalf("WithFee(1)=%d want 3", got)
	}
	prev := 0
	for net := 1; net <= 2000; net++ {
		got := c.WithFee(net)
		if got <= net {
			t.Fatalf("WithFee(%d)=%d not above net", net, got)
		}
		if got < prev {
			t.Fatalf("WithFee(%d)=%d below WithFee(%d)=%d", net, got, net-1, prev)
		}
		prev = got
	}
}
