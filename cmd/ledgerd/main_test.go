package main

import "testing"

func TestResolveContentDriver(t *testing.T) {
	tests := []struct {
		store, configured string
		want              string
		wantErr           bool
	}{
		{"memory", "", "memory", false},
		{"badger", "", "badger", false},
		{"postgres", "", "memory", false},
		{"postgres", "badger", "badger", false},
		{"badger", "memory", "memory", false},
		{"postgres", "s3", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.store+"/"+tt.configured, func(t *testing.T) {
			got, err := resolveContentDriver(tt.store, tt.configured)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
