package d365_tools

import (
	"testing"
)

func TestParseCommaSeparatedList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "CustomerAccount",
			expected: []string{"CustomerAccount"},
		},
		{
			name:     "multiple values",
			input:    "CustomerAccount,Name",
			expected: []string{"CustomerAccount", "Name"},
		},
		{
			name:     "values with spaces around comma",
			input:    "CustomerAccount, Name",
			expected: []string{"CustomerAccount", "Name"},
		},
		{
			name:     "values with leading/trailing spaces",
			input:    "  CustomerAccount  ,  Name  ",
			expected: []string{"CustomerAccount", "Name"},
		},
		{
			name:     "trailing comma",
			input:    "CustomerAccount,Name,",
			expected: []string{"CustomerAccount", "Name"},
		},
		{
			name:     "leading comma",
			input:    ",CustomerAccount,Name",
			expected: []string{"CustomerAccount", "Name"},
		},
		{
			name:     "multiple consecutive commas",
			input:    "CustomerAccount,,Name",
			expected: []string{"CustomerAccount", "Name"},
		},
		{
			name:     "only commas and spaces",
			input:    ",  , , ",
			expected: nil,
		},
		{
			name:     "single value with surrounding whitespace",
			input:    "  CustomerAccount  ",
			expected: []string{"CustomerAccount"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseCommaSeparatedList(tt.input)

			if tt.expected == nil {
				if result != nil {
					t.Errorf("parseCommaSeparatedList(%q) = %v, want nil", tt.input, result)
				}
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("parseCommaSeparatedList(%q) = %v (len %d), want %v (len %d)",
					tt.input, result, len(result), tt.expected, len(tt.expected))
				return
			}

			for i, v := range result {
				if v != tt.expected[i] {
					t.Errorf("parseCommaSeparatedList(%q)[%d] = %q, want %q",
						tt.input, i, v, tt.expected[i])
				}
			}
		})
	}
}

func TestGetEntityFromArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]interface{}
		expected string
	}{
		{
			name:     "entity present",
			args:     map[string]interface{}{"entity": "CustomersV3"},
			expected: "CustomersV3",
		},
		{
			name:     "entity missing",
			args:     map[string]interface{}{"filter": "Name eq 'x'"},
			expected: "",
		},
		{
			name:     "entity wrong type",
			args:     map[string]interface{}{"entity": 42},
			expected: "",
		},
		{
			name:     "nil args",
			args:     nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getEntityFromArgs(tt.args)
			if result != tt.expected {
				t.Errorf("getEntityFromArgs() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestParseRecordArg(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr bool
	}{
		{
			name:    "valid object",
			args:    map[string]interface{}{"record": `{"CustomerAccount":"US-001","Name":"Contoso"}`},
			wantErr: false,
		},
		{
			name:    "empty object",
			args:    map[string]interface{}{"record": `{}`},
			wantErr: false,
		},
		{
			name:    "missing record",
			args:    map[string]interface{}{},
			wantErr: true,
		},
		{
			name:    "empty string",
			args:    map[string]interface{}{"record": ""},
			wantErr: true,
		},
		{
			name:    "not JSON",
			args:    map[string]interface{}{"record": "not json"},
			wantErr: true,
		},
		{
			name:    "JSON array instead of object",
			args:    map[string]interface{}{"record": `[1,2,3]`},
			wantErr: true,
		},
		{
			name:    "wrong type",
			args:    map[string]interface{}{"record": 42},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := parseRecordArg(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Error("parseRecordArg() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("parseRecordArg() unexpected error: %v", err)
			}
			if len(raw) == 0 {
				t.Error("parseRecordArg() returned empty payload")
			}
		})
	}
}
