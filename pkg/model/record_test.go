package model

import "testing"

func TestParseRecordStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    RecordStatus
		wantErr bool
	}{
		{"", "", false},
		{"ok", RecordOK, false},
		{"failed", RecordFailed, false},
		{"FAILED", "", true},
		{"pending", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRecordStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRecordStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseRecordStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestListOptions_Clamp(t *testing.T) {
	tests := []struct {
		in   ListOptions
		want ListOptions
	}{
		{ListOptions{}, ListOptions{Limit: 20}},
		{ListOptions{Limit: 500, Offset: -3}, ListOptions{Limit: 100}},
		{ListOptions{Limit: 5, Offset: 10, Op: "upload"}, ListOptions{Limit: 5, Offset: 10, Op: "upload"}},
	}
	for _, tt := range tests {
		got := tt.in
		got.Clamp()
		if got != tt.want {
			t.Errorf("Clamp(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
