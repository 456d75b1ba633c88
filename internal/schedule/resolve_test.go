package schedule

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestResolveVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input any
		kind  Kind
		delay time.Duration
	}{
		{name: "millis int", input: 500, kind: KindDelay, delay: 500 * time.Millisecond},
		{name: "millis float", input: 1500.0, kind: KindDelay, delay: 1500 * time.Millisecond},
		{name: "zero", input: 0, kind: KindDelay, delay: 0},
		{name: "go duration value", input: 3 * time.Second, kind: KindDelay, delay: 3 * time.Second},
		{name: "duration string", input: "3s", kind: KindDelay, delay: 3 * time.Second},
		{name: "compound duration", input: "2h30m", kind: KindDelay, delay: 2*time.Hour + 30*time.Minute},
		{name: "hhmm", input: "02:30", kind: KindDelay, delay: 2*time.Hour + 30*time.Minute},
		{name: "hhmm minutes", input: "00:50", kind: KindDelay, delay: 50 * time.Minute},
		{name: "cron", input: "*/5 * * * *", kind: KindRecurring},
		{name: "descriptor", input: "@hourly", kind: KindRecurring},
		{name: "every descriptor", input: "@every 55m", kind: KindRecurring},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.input)
			if err != nil {
				t.Fatalf("Resolve(%v) error: %v", tt.input, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if tt.kind == KindDelay && got.Delay != tt.delay {
				t.Fatalf("Delay = %v, want %v", got.Delay, tt.delay)
			}
			if tt.kind == KindRecurring && got.Recurring == nil {
				t.Fatal("Recurring descriptor is nil")
			}
		})
	}
}

func TestResolveInvalid(t *testing.T) {
	t.Parallel()
	inputs := []any{
		-1,
		-250.0,
		math.NaN(),
		math.Inf(1),
		-3 * time.Second,
		"",
		"not-a-schedule",
		"-3s",
		"61 * * * * *",
		struct{}{},
		nil,
	}
	for _, in := range inputs {
		if _, err := Resolve(in); err == nil {
			t.Fatalf("Resolve(%v) succeeded, want error", in)
		} else if !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("Resolve(%v) error %v does not wrap ErrInvalidSchedule", in, err)
		}
	}
}

func TestResolvePrebuiltTrusted(t *testing.T) {
	t.Parallel()
	in := Delay(time.Minute)
	got, err := Resolve(in)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got != in {
		t.Fatalf("pre-built schedule was not returned unchanged: %+v", got)
	}
}

func TestResolveCronSecondsFlag(t *testing.T) {
	t.Parallel()
	const sixField = "*/30 * * * * *"

	if _, err := ResolveCron(sixField, false); err == nil {
		t.Fatal("6-field spec accepted without seconds flag")
	}
	got, err := ResolveCron(sixField, true)
	if err != nil {
		t.Fatalf("ResolveCron with seconds: %v", err)
	}
	if got.Kind != KindRecurring {
		t.Fatalf("Kind = %v, want KindRecurring", got.Kind)
	}

	// 5-field specs work either way.
	if _, err := ResolveCron("0 3 * * *", true); err != nil {
		t.Fatalf("5-field spec rejected with seconds flag: %v", err)
	}
}

func TestScheduleNext(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d := Delay(90 * time.Second)
	if got := d.Next(now); !got.Equal(now.Add(90 * time.Second)) {
		t.Fatalf("delay Next = %v", got)
	}

	r, err := ResolveText("0 13 * * *")
	if err != nil {
		t.Fatalf("ResolveText: %v", err)
	}
	if got := r.Next(now); got.Hour() != 13 || got.Minute() != 0 {
		t.Fatalf("recurring Next = %v, want 13:00", got)
	}
}
