package handlers

import (
	"reflect"
	"strings"
	"testing"
)

func TestSanitizeTableName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Risk Register", "risk_register"},
		{"  2024 Summary ", "table_2024_summary"},
		{"Réseau--Données!!", "reseau_donnees"},
		{"___", "unnamed_table"},
		{"", "unnamed_table"},
		{"Sheet1", "sheet1"},
		{strings.Repeat("a", 80), strings.Repeat("a", 63)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeTableName(tt.in); got != tt.want {
				t.Fatalf("SanitizeTableName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanColumnName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Risk ID", "risk_id"},
		{"Unnamed: 3", ""},
		{"   ", ""},
		{"1st Value", "col_1st_value"},
		{"Line\nBreak", "line_break"},
	}
	for _, tt := range tests {
		if got := CleanColumnName(tt.in); got != tt.want {
			t.Fatalf("CleanColumnName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestColumnNames_BlankAndDuplicates(t *testing.T) {
	t.Parallel()

	got := ColumnNames([]string{"Name", "", "name", "Name_1", "NAME"})
	want := []string{"name", "column_2", "name_2", "name_1", "name_3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ColumnNames = %v, want %v", got, want)
	}
}

func TestUniqueNames_Deterministic(t *testing.T) {
	t.Parallel()

	in := []string{"t", "t", "t", "u"}
	a, b := UniqueNames(in), UniqueNames(in)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("UniqueNames not deterministic: %v vs %v", a, b)
	}
	if want := []string{"t", "t_1", "t_2", "u"}; !reflect.DeepEqual(a, want) {
		t.Fatalf("UniqueNames = %v, want %v", a, want)
	}
}
