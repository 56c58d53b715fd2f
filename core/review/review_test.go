package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSummary(t *testing.T) {
	tests := []struct {
		name  string
		stars map[int]int
		want  Summary
	}{
		{
			name:  "no reviews",
			stars: nil,
			want:  Summary{Stars: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}},
		},
		{
			name:  "average",
			stars: map[int]int{4: 1, 5: 1},
			want:  Summary{Average: 4.5, Count: 2, Stars: map[int]int{1: 0, 2: 0, 3: 0, 4: 1, 5: 1}},
		},
		{
			name:  "rounded to 2 decimals",
			stars: map[int]int{5: 2, 4: 1},
			want:  Summary{Average: 4.67, Count: 3, Stars: map[int]int{1: 0, 2: 0, 3: 0, 4: 1, 5: 2}},
		},
		{
			name:  "rounded down",
			stars: map[int]int{5: 1, 4: 2},
			want:  Summary{Average: 4.33, Count: 3, Stars: map[int]int{1: 0, 2: 0, 3: 0, 4: 2, 5: 1}},
		},
		{
			name:  "out of range ratings ignored",
			stars: map[int]int{0: 3, 3: 1, 6: 2},
			want:  Summary{Average: 3, Count: 1, Stars: map[int]int{1: 0, 2: 0, 3: 1, 4: 0, 5: 0}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewSummary(tt.stars))
		})
	}
}
