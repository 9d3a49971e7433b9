package connector

import (
	"testing"
	"time"
)

// recordingBootstrap counts Option calls per key.
type recordingBootstrap struct {
	calls  int
	values map[OptionKey]any
}

func newRecordingBootstrap() *recordingBootstrap {
	return &recordingBootstrap{values: make(map[OptionKey]any)}
}

func (b *recordingBootstrap) Option(key OptionKey, value any) {
	b.calls++
	b.values[key] = value
}

func TestApplyOptions_Empty(t *testing.T) {
	tests := []struct {
		name    string
		options OptionSet
	}{
		{"nil set", nil},
		{"empty set", OptionSet{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := newRecordingBootstrap()
			ApplyOptions(target, tt.options)

			if target.calls != 0 {
				t.Errorf("Option called %d times, want 0", target.calls)
			}
			if len(target.values) != 0 {
				t.Errorf("target modified: %v", target.values)
			}
		})
	}
}

func TestApplyOptions_OneCallPerEntry(t *testing.T) {
	options := OptionSet{
		OptionConnectTimeout: 5 * time.Second,
		OptionTCPNoDelay:     true,
		OptionReadBuffer:     64 << 10,
		OptionLocalAddr:      "127.0.0.1",
	}

	target := newRecordingBootstrap()
	ApplyOptions(target, options)

	if target.calls != len(options) {
		t.Errorf("Option called %d times, want %d", target.calls, len(options))
	}
	for key, want := range options {
		if got := target.values[key]; got != want {
			t.Errorf("option %s = %v, want %v", key, got, want)
		}
	}
}

func TestApplyOptions_OrderIndependent(t *testing.T) {
	options := OptionSet{
		OptionConnectTimeout: time.Second,
		OptionTCPKeepAlive:   30 * time.Second,
		OptionWriteBuffer:    4096,
	}

	first := newRecordingBootstrap()
	second := newRecordingBootstrap()
	ApplyOptions(first, options)
	ApplyOptions(second, options)

	if len(first.values) != len(second.values) {
		t.Fatalf("different option counts: %d vs %d", len(first.values), len(second.values))
	}
	for key, v := range first.values {
		if second.values[key] != v {
			t.Errorf("option %s differs between applications: %v vs %v", key, v, second.values[key])
		}
	}
}

func TestBase_ApplyOptions(t *testing.T) {
	base, err := New(testMQTTConfig(), ConnectParameter{}, &countingFactory{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	target := newRecordingBootstrap()
	base.ApplyOptions(target, OptionSet{OptionTCPNoDelay: false})

	if target.calls != 1 {
		t.Errorf("Option called %d times, want 1", target.calls)
	}
	if v, ok := target.values[OptionTCPNoDelay]; !ok || v != false {
		t.Errorf("tcp_no_delay = %v (set=%v), want false", v, ok)
	}
}
