package notify

import "testing"

func TestDeriveKeepSize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		maxSize int32
		want    int32
	}{
		// Сценарий 6 спецификации: max_size=3 -> keep_size = 3 + max(5, min(3,10)) = 8.
		{name: "scenario6 small max size", maxSize: 3, want: 8},
		{name: "default max size 10", maxSize: 10, want: 20},
		{name: "tiny max size still gets the extra floor of 5", maxSize: 1, want: 6},
		{name: "max size above extra uses min(max,extra)", maxSize: 50, want: 60},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := deriveKeepSize(tc.maxSize); got != tc.want {
				t.Errorf("deriveKeepSize(%d) = %d, want %d", tc.maxSize, got, tc.want)
			}
		})
	}
}
