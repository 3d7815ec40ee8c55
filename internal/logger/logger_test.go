package logger

import "testing"

func TestInit(t *testing.T) {
	tests := []struct {
		level   string
		format  string
		wantErr bool
	}{
		{"debug", "json", false},
		{"info", "text", false},
		{"warn", "text", false},
		{"error", "json", false},
		{"trace", "json", true},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			err := Init(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Init() err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (Log == nil || GetZapLogger() == nil) {
				t.Error("Init() left the global logger unset")
			}
		})
	}
}
