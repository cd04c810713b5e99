package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		in       Filter
		wantPage int
		wantSize int
		wantDir  string
	}{
		{"zero values", Filter{}, 1, 20, "desc"},
		{"oversized page", Filter{Page: 3, PageSize: 1000, OrderDir: "asc"}, 3, MaxPageSize, "asc"},
		{"unknown direction", Filter{Page: 2, PageSize: 10, OrderDir: "sideways"}, 2, 10, "desc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.in
			f.Normalize()
			assert.Equal(t, tt.wantPage, f.Page)
			assert.Equal(t, tt.wantSize, f.PageSize)
			assert.Equal(t, tt.wantDir, f.OrderDir)
		})
	}
}

func TestFilter_Offset(t *testing.T) {
	assert.Equal(t, 0, Filter{Page: 1, PageSize: 20}.Offset())
	assert.Equal(t, 40, Filter{Page: 3, PageSize: 20}.Offset())
	assert.Equal(t, 0, Filter{Page: 0, PageSize: 20}.Offset())
}

func TestNewPaginated(t *testing.T) {
	p := NewPaginated([]int{1, 2, 3}, 41, 1, 20)
	assert.Equal(t, 3, p.TotalPages)
	assert.Len(t, p.Items, 3)

	empty := NewPaginated[int](nil, 0, 1, 20)
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.TotalPages)
}
