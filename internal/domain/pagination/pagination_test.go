package pagination

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		req   Request
		want  Page
	}{
		{
			name:  "empty result is page 1 of 1",
			total: 0,
			req:   Request{Page: 1, Limit: 10},
			want:  Page{CurrentPage: 1, PreviousPage: 1, NextPage: 1, PageCount: 1, Limit: 10},
		},
		{
			name:  "empty result with out of range page",
			total: 0,
			req:   Request{Page: 7, Limit: 10},
			want:  Page{CurrentPage: 7, PreviousPage: 6, NextPage: 1, PageCount: 1, Limit: 10},
		},
		{
			name:  "last page clamps next",
			total: 25,
			req:   Request{Page: 3, Limit: 10},
			want:  Page{CurrentPage: 3, PreviousPage: 2, NextPage: 3, PageCount: 3, Limit: 10},
		},
		{
			name:  "first of three vinyl pages",
			total: 12,
			req:   Request{Page: 1, Limit: 5},
			want:  Page{CurrentPage: 1, PreviousPage: 1, NextPage: 2, PageCount: 3, Limit: 5},
		},
		{
			name:  "second to last page points at last",
			total: 30,
			req:   Request{Page: 2, Limit: 10},
			want:  Page{CurrentPage: 2, PreviousPage: 1, NextPage: 3, PageCount: 3, Limit: 10},
		},
		{
			name:  "exact multiple",
			total: 20,
			req:   Request{Page: 1, Limit: 10},
			want:  Page{CurrentPage: 1, PreviousPage: 1, NextPage: 2, PageCount: 2, Limit: 10},
		},
		{
			name:  "defaults",
			total: 3,
			req:   Request{},
			want:  Page{CurrentPage: 1, PreviousPage: 1, NextPage: 1, PageCount: 1, Limit: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Calculate(tt.total, tt.req))
		})
	}
}

func TestRequest_Skip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want int
	}{
		{name: "first page", req: NewRequest(1, 10), want: 0},
		{name: "third page", req: NewRequest(3, 10), want: 20},
		{name: "defaults", req: NewRequest(0, 0), want: 0},
		{name: "highest accepted page", req: NewRequest(MaxPage, 100), want: (MaxPage - 1) * 100},
		{name: "saturates instead of overflowing", req: NewRequest(math.MaxInt/100+2, 100), want: math.MaxInt},
		{name: "largest page", req: NewRequest(math.MaxInt, 100), want: math.MaxInt},
		{name: "unnormalized request", req: Request{Page: 0, Limit: 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Skip())
		})
	}
}

func TestCalculate_HugePage(t *testing.T) {
	p := Calculate(25, Request{Page: math.MaxInt, Limit: 10})
	assert.Equal(t, Page{CurrentPage: math.MaxInt, PreviousPage: math.MaxInt - 1, NextPage: 3, PageCount: 3, Limit: 10}, p)
}

func TestCalculate_Invariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.Int64Range(0, 1_000_000).Draw(t, "total")
		page := rapid.IntRange(1, 10_000).Draw(t, "page")
		limit := rapid.IntRange(1, 500).Draw(t, "limit")

		p := Calculate(total, Request{Page: page, Limit: limit})

		if p.PageCount < 1 {
			t.Fatalf("pageCount %d < 1", p.PageCount)
		}
		if int64(p.PageCount-1)*int64(limit) >= total && total > 0 {
			t.Fatalf("pageCount %d too large for total %d limit %d", p.PageCount, total, limit)
		}
		if int64(p.PageCount)*int64(limit) < total {
			t.Fatalf("pageCount %d too small for total %d limit %d", p.PageCount, total, limit)
		}
		if p.PreviousPage < 1 || p.PreviousPage > page {
			t.Fatalf("previousPage %d out of range for page %d", p.PreviousPage, page)
		}
		if p.NextPage > p.PageCount {
			t.Fatalf("nextPage %d exceeds pageCount %d", p.NextPage, p.PageCount)
		}
		if p.CurrentPage != page || p.Limit != limit {
			t.Fatalf("current/limit not echoed: %+v", p)
		}
	})
}
