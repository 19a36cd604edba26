package handlers

import (
	"testing"
)

func TestDetectHeaderRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		grid   [][]string
		want   int
		wantOK bool
	}{
		{
			name: "first row",
			grid: [][]string{
				{"id", "name", "domain"},
				{"1", "a", "x"},
				{"2", "b", "x"},
			},
			want: 0, wantOK: true,
		},
		{
			name: "title rows above header",
			grid: [][]string{
				{"Quarterly report", "", "", ""},
				{"", "", "", ""},
				{"Region", "Sales", "Units", "Owner"},
				{"North", "10", "3", "ann"},
				{"South", "12", "4", "bob"},
			},
			want: 2, wantOK: true,
		},
		{
			name: "numbers only",
			grid: [][]string{
				{"1", "1", "1", "1"},
				{"2", "2", "2", "2"},
			},
			want: 0, wantOK: false,
		},
		{
			name: "empty",
			grid: nil,
			want: 0, wantOK: false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := DetectHeaderRow(tt.grid, HeaderScanRows)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("DetectHeaderRow = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestGridRowSet_DropsBlankRowsAndColumns(t *testing.T) {
	t.Parallel()

	grid := [][]string{
		{"Report", "", ""},
		{"Name", "Unused", "Score"},
		{"ann", "", "1"},
		{"", "", ""},
		{"bob", "", " "},
	}
	rs := gridRowSet("t", grid, nil)
	if len(rs.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rs.Rows))
	}
	if len(rs.Columns) != 2 || rs.Columns[0] != "name" || rs.Columns[1] != "score" {
		t.Fatalf("columns = %v, want [name score]", rs.Columns)
	}
	if rs.Rows[1]["score"] != nil {
		t.Fatalf("blank cell should be nil, got %#v", rs.Rows[1]["score"])
	}
	if rs.Metadata["header_row"] != 1 {
		t.Fatalf("header_row = %v, want 1", rs.Metadata["header_row"])
	}
}
