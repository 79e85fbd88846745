package common

import "testing"

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid lowercase", "@ivan_petrov", "@ivan_petrov"},
		{"valid mixed case", "@Ivan_Petrov", "@ivan_petrov"},
		{"surrounding spaces", "  @chelovek  ", "@chelovek"},
		{"digits and underscore", "@a_1_b_2", "@a_1_b_2"},
		{"max length 32", "@" + "a234567890123456789012345678901b", "@a234567890123456789012345678901b"},
		{"missing @", "ivan", ""},
		{"too short", "@ab", ""},
		{"too long", "@" + "a234567890123456789012345678901bc", ""},
		{"bad characters", "@иван", ""},
		{"dash", "@ivan-petrov", ""},
		{"empty", "", ""},
		{"only @", "@", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeUsername(tt.in); got != tt.want {
				t.Errorf("NormalizeUsername(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripAt(t *testing.T) {
	if got := StripAt(" @Ivan "); got != "ivan" {
		t.Errorf("StripAt = %q, want %q", got, "ivan")
	}
	if got := StripAt("petya"); got != "petya" {
		t.Errorf("StripAt = %q, want %q", got, "petya")
	}
}
