package notify

import "testing"

func TestDelayMS(t *testing.T) {
	t.Parallel()

	params := delayParams{
		CloudDelayMS:         2000,
		DefaultDelayMS:       1500,
		OnlineCloudTimeoutMS: 300000,
	}

	cases := []struct {
		name          string
		dialogKind    DialogKind
		canBeDelayed  bool
		presence      Presence
		serverTimeNow float64
		pendingDate   int32
		want          int32
	}{
		{
			// Сценарий 1: пользователь онлайн локально, дата "сейчас" -> базовая
			// задержка 0, но подставляется минимум.
			name:          "scenario1 online locally",
			dialogKind:    DialogUser,
			canBeDelayed:  true,
			presence:      Presence{IsOnlineLocal: true, IsOnlineRemote: false},
			serverTimeNow: 1000,
			pendingDate:   1000,
			want:          minNotificationDelayMS,
		},
		{
			// Секретный чат никогда не откладывается.
			name:          "scenario5 secret chat",
			dialogKind:    DialogSecretChat,
			canBeDelayed:  true,
			presence:      Presence{},
			serverTimeNow: 1000,
			pendingDate:   1000,
			want:          minNotificationDelayMS,
		},
		{
			name:          "not delayable type forces zero base",
			dialogKind:    DialogUser,
			canBeDelayed:  false,
			presence:      Presence{IsOnlineRemote: true},
			serverTimeNow: 1000,
			pendingDate:   1000,
			want:          minNotificationDelayMS,
		},
		{
			name:          "remote online while local offline uses cloud delay",
			dialogKind:    DialogUser,
			canBeDelayed:  true,
			presence:      Presence{IsOnlineLocal: false, IsOnlineRemote: true},
			serverTimeNow: 1000,
			pendingDate:   1000,
			want:          2000, // passed_ms = max(0,(1000-1000-1)*1000)=0 (the -1s slack keeps it clipped) -> base - 0 = 2000
		},
		{
			name:          "online locally and remotely uses default delay",
			dialogKind:    DialogUser,
			canBeDelayed:  true,
			presence:      Presence{IsOnlineLocal: true, IsOnlineRemote: true},
			serverTimeNow: 1000,
			pendingDate:   1000,
			want:          1500,
		},
		{
			name:          "fully offline everywhere yields zero base",
			dialogKind:    DialogUser,
			canBeDelayed:  true,
			presence:      Presence{IsOnlineLocal: false, IsOnlineRemote: false},
			serverTimeNow: 1000,
			pendingDate:   1000,
			want:          minNotificationDelayMS,
		},
		{
			// passed_ms эффект: сообщение уже "старое" на 5 секунд к моменту
			// прихода, это съедает часть облачной задержки.
			name:          "aged pending notification shrinks delay",
			dialogKind:    DialogUser,
			canBeDelayed:  true,
			presence:      Presence{IsOnlineLocal: false, IsOnlineRemote: true},
			serverTimeNow: 1005,
			pendingDate:   1000,
			want:          minNotificationDelayMS, // 2000 - max(0,(1005-1000-1)*1000=4000) = -2000 -> floored to MIN
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := delayMS(tc.dialogKind, tc.canBeDelayed, tc.presence, params, tc.serverTimeNow, tc.pendingDate)
			if got != tc.want {
				t.Errorf("delayMS() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDelayMSFloorNeverNegative(t *testing.T) {
	t.Parallel()
	params := delayParams{CloudDelayMS: 100, DefaultDelayMS: 100, OnlineCloudTimeoutMS: 1000}
	got := delayMS(DialogUser, true, Presence{IsOnlineRemote: true}, params, 1_000_000, 0)
	if got < minNotificationDelayMS {
		t.Errorf("delayMS() = %d, must never fall below %d", got, minNotificationDelayMS)
	}
}
