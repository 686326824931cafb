package sanitizer

import (
	"reflect"
	"testing"
)

func TestNormalizeWeekdays(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "convert to lowercase",
			input: []string{"Monday", "TUESDAY"},
			want:  []string{"monday", "tuesday"},
		},
		{
			name:  "trim whitespace",
			input: []string{" Monday ", "  Tuesday  "},
			want:  []string{"monday", "tuesday"},
		},
		{
			name:  "remove duplicates",
			input: []string{"Monday", "monday", "MONDAY"},
			want:  []string{"monday"},
		},
		{
			name:  "filter empty strings",
			input: []string{"Monday", "", "  ", "Friday"},
			want:  []string{"monday", "friday"},
		},
		{
			name:  "empty input",
			input: []string{},
			want:  []string{},
		},
		{
			name:  "nil input",
			input: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeWeekdays(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeWeekdays(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
