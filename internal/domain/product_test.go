package domain

import "testing"

func TestDeriveStockStatus(t *testing.T) {
	cases := []struct {
		stock   int
		inStock bool
		want    StockStatus
	}{
		{0, true, StockStatusNone},
		{1, true, StockStatusFew},
		{2, true, StockStatusFew},
		{3, true, StockStatusEnough},
		{10, true, StockStatusEnough},
		{11, true, StockStatusMany},
		{500, true, StockStatusMany},
		{0, false, StockStatusNone},
		{7, false, StockStatusNone},
		{1000, false, StockStatusNone},
	}

	for _, c := range cases {
		got := DeriveStockStatus(c.stock, c.inStock)
		if got != c.want {
			t.Errorf("DeriveStockStatus(%d, %v) = %q, want %q", c.stock, c.inStock, got, c.want)
		}
	}
}

func TestDeriveStockStatusMonotonic(t *testing.T) {
	rank := map[StockStatus]int{
		StockStatusNone:   0,
		StockStatusFew:    1,
		StockStatusEnough: 2,
		StockStatusMany:   3,
	}

	prev := DeriveStockStatus(0, true)
	for stock := 1; stock <= 100; stock++ {
		cur := DeriveStockStatus(stock, true)
		if rank[cur] < rank[prev] {
			t.Fatalf("tier dropped from %q to %q at stock %d", prev, cur, stock)
		}
		prev = cur
	}
}
