package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bách Hóa Xanh", "bach hoa xanh"},
		{"  Nhà thuốc   Long Châu ", "nha thuoc long chau"},
		{"Đường Điện Biên Phủ", "duong dien bien phu"},
		{"2 tỷ 500 triệu", "2 ty 500 trieu"},
		{"Circle K", "circle k"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Fold(tt.in))
		})
	}
}

func TestContainsAny(t *testing.T) {
	assert.True(t, ContainsAny("Siêu thị CO.OP Mart Cống Quỳnh", "co.op mart"))
	assert.True(t, ContainsAny("Nhà Thuốc Pharmacity", "nha thuoc"))
	assert.False(t, ContainsAny("Tạp hóa Cô Ba", "bach hoa xanh", "winmart"))
	assert.False(t, ContainsAny("", "x"))
	assert.False(t, ContainsAny("anything", ""))
}
