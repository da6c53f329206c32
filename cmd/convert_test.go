package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCounts(t *testing.T) {
	tests := []struct {
		name   string
		counts map[string]int
		want   string
	}{
		{"empty", nil, "empty"},
		{"sorted", map[string]int{"ip_cidr": 2, "domain": 10, "logical": 1}, "domain=10 ip_cidr=2 logical=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatCounts(tt.counts))
		})
	}
}
