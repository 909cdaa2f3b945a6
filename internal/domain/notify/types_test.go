package notify

import "testing"

func TestGroupKeyLess(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b GroupKey
		want bool
	}{
		{
			name: "newer date sorts first",
			a:    GroupKey{GroupID: 1, LastNotificationDate: 20},
			b:    GroupKey{GroupID: 2, LastNotificationDate: 10},
			want: true,
		},
		{
			name: "tie broken by larger group id",
			a:    GroupKey{GroupID: 5, LastNotificationDate: 10},
			b:    GroupKey{GroupID: 3, LastNotificationDate: 10},
			want: true,
		},
		{
			name: "empty key sorts last against any nonempty key",
			a:    GroupKey{GroupID: 1, LastNotificationDate: 0},
			b:    GroupKey{GroupID: 2, LastNotificationDate: 1},
			want: false,
		},
		{
			name: "nonempty key always sorts before empty key",
			a:    GroupKey{GroupID: 2, LastNotificationDate: 1},
			b:    GroupKey{GroupID: 1, LastNotificationDate: 0},
			want: true,
		},
		{
			name: "two empty keys break tie by group id",
			a:    GroupKey{GroupID: 9, LastNotificationDate: 0},
			b:    GroupKey{GroupID: 4, LastNotificationDate: 0},
			want: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.a.Less(tc.b); got != tc.want {
				t.Errorf("Less(%+v, %+v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestNotificationIDValid(t *testing.T) {
	t.Parallel()
	if NotificationID(0).Valid() {
		t.Error("zero NotificationID must be invalid")
	}
	if !NotificationID(1).Valid() {
		t.Error("nonzero NotificationID must be valid")
	}
}
