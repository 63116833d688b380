package config

import "testing"

func TestNormalizePaginationLimit(t *testing.T) {
	cases := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero falls back to default", 0, DefaultPaginationLimit},
		{"negative falls back to default", -3, DefaultPaginationLimit},
		{"over cap falls back to default", 500, DefaultPaginationLimit},
		{"in range passes through", 25, 25},
		{"cap itself passes through", 100, 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizePaginationLimit(tc.limit); got != tc.want {
				t.Errorf("NormalizePaginationLimit(%d) = %d, want %d", tc.limit, got, tc.want)
			}
		})
	}
}

func TestNormalizeOffset(t *testing.T) {
	cases := []struct {
		name   string
		offset int64
		want   int64
	}{
		{"negative clamps to zero", -1, 0},
		{"zero passes through", 0, 0},
		{"positive passes through", 40, 40},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeOffset(tc.offset); got != tc.want {
				t.Errorf("NormalizeOffset(%d) = %d, want %d", tc.offset, got, tc.want)
			}
		})
	}
}
