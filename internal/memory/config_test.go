package memory

import "testing"

func TestConfigure(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		wantSrc   string
		wantLimit int64
		wantSet   bool
	}{
		{"nothing set", nil, "none", 0, false},
		{"container limit", map[string]string{"MEMORY_LIMIT": "1000"}, "MEMORY_LIMIT", 750, true},
		{"custom ratio", map[string]string{"MEMORY_LIMIT": "1000", "MEMORY_RATIO": "0.5"}, "MEMORY_LIMIT", 500, true},
		{"ratio out of range", map[string]string{"MEMORY_LIMIT": "1000", "MEMORY_RATIO": "1.5"}, "MEMORY_LIMIT", 750, true},
		{"ratio garbage", map[string]string{"MEMORY_LIMIT": "1000", "MEMORY_RATIO": "lots"}, "MEMORY_LIMIT", 750, true},
		{"invalid limit", map[string]string{"MEMORY_LIMIT": "512Mi"}, "none", 0, false},
		{"negative limit", map[string]string{"MEMORY_LIMIT": "-5"}, "none", 0, false},
		{"explicit GOMEMLIMIT wins", map[string]string{"GOMEMLIMIT": "1GiB", "MEMORY_LIMIT": "1000"}, "GOMEMLIMIT", 1 << 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var set int64 = -1
			getenv := func(k string) string { return tt.env[k] }
			setLimit := func(v int64) int64 {
				if v < 0 {
					return 1 << 30
				}
				set = v
				return 0
			}

			res := configure(getenv, setLimit)
			if res.Source != tt.wantSrc {
				t.Errorf("Source = %q, want %q", res.Source, tt.wantSrc)
			}
			if res.GoMemLimit != tt.wantLimit {
				t.Errorf("GoMemLimit = %d, want %d", res.GoMemLimit, tt.wantLimit)
			}
			if (set >= 0) != tt.wantSet {
				t.Errorf("limit applied = %v, want %v", set >= 0, tt.wantSet)
			}
			if tt.wantSet && set != tt.wantLimit {
				t.Errorf("applied %d, want %d", set, tt.wantLimit)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{2 << 30, "2.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
