package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderCell(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: "(null)"},
		{name: "bool", in: true, want: "true"},
		{name: "int64", in: int64(-7), want: "-7"},
		{name: "int32", in: int32(7), want: "7"},
		{name: "uint64", in: uint64(7), want: "7"},
		{name: "float64", in: 3.25, want: "3.25"},
		{name: "string", in: "hello", want: "hello"},
		{name: "blob", in: []byte{1, 2, 3}, want: "<blob 3 bytes>"},
		{name: "timestamp", in: ts, want: "2024-01-02 03:04:05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderCell(tt.in))
		})
	}
}
