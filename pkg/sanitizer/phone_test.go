package sanitizer

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "valid E.164 format",
			input: "+201012345678",
			want:  "+201012345678",
		},
		{
			name:  "with spaces",
			input: "+20 10 1234 5678",
			want:  "+201012345678",
		},
		{
			name:  "with dashes",
			input: "+20-10-1234-5678",
			want:  "+201012345678",
		},
		{
			name:  "local format without country code",
			input: "01012345678",
			want:  "+201012345678",
		},
		{
			name:  "us number with parentheses",
			input: "+1 (212) 555-1234",
			want:  "+12125551234",
		},
		{
			name:  "leading and trailing spaces",
			input: "  +201012345678  ",
			want:  "+201012345678",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "only whitespace",
			input: "   ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePhone(tt.input)
			if got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	input := "+20 10 1234 5678"
	once := NormalizePhone(input)
	twice := NormalizePhone(once)

	if once != twice {
		t.Errorf("NormalizePhone is not idempotent: %q != %q", once, twice)
	}
}
