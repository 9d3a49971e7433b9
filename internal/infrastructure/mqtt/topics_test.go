package mqtt

import (
	"errors"
	"testing"
)

func TestTopics_Status(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "mqttconnect/clients/gw-01/status"},
		{"site/clients", "site/clients/gw-01/status"},
		{"site/clients/", "site/clients/gw-01/status"},
	}
	for _, tt := range tests {
		if got := (Topics{Prefix: tt.prefix}).Status("gw-01"); got != tt.want {
			t.Errorf("Topics{%q}.Status() = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestTopics_All(t *testing.T) {
	if got := (Topics{Prefix: "site"}).All(); got != "site/#" {
		t.Errorf("All() = %q, want site/#", got)
	}
}

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		topic   string
		filter  bool
		wantErr bool
	}{
		{"a/b/c", false, false},
		{"", false, true},
		{"", true, true},
		{"a/+/c", false, true},
		{"a/#", false, true},
		{"a/+/c", true, false},
		{"a/#", true, false},
		{"#", true, false},
		{"a/#/c", true, true},
		{"a/b+/c", true, true},
		{"a/b#", true, true},
	}
	for _, tt := range tests {
		err := ValidateTopic(tt.topic, tt.filter)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTopic(%q, %v) error = %v, wantErr %v", tt.topic, tt.filter, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("ValidateTopic(%q) error = %v, want ErrInvalidTopic", tt.topic, err)
		}
	}
}
