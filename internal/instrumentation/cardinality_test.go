package instrumentation

import (
	"strings"
	"testing"
)

func TestSanitizeEntityLabel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple entity name",
			input:    "CustomersV3",
			expected: "customersv3",
		},
		{
			name:     "locator path",
			input:    "/data/CustomersV3",
			expected: "data_customersv3",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "unknown",
		},
		{
			name:     "whitespace only",
			input:    "   ",
			expected: "unknown",
		},
		{
			name:     "spaces between words",
			input:    "sales order headers",
			expected: "sales_order_headers",
		},
		{
			name:     "consecutive separators collapse",
			input:    "sales  --  orders",
			expected: "sales_orders",
		},
		{
			name:     "symbols only",
			input:    "///",
			expected: "unknown",
		},
		{
			name:     "trailing separator trimmed",
			input:    "customers/",
			expected: "customers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeEntityLabel(tt.input); got != tt.expected {
				t.Errorf("SanitizeEntityLabel(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeEntityLabelTruncates(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := SanitizeEntityLabel(long)
	if len(got) != maxEntityLabelLength {
		t.Errorf("Expected truncation to %d characters, got %d", maxEntityLabelLength, len(got))
	}
}
