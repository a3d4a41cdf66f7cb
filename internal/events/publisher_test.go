package events

import (
	"context"
	"testing"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"nil brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerPartial != nil {
				t.Error("expected nil partial writer when disabled")
			}
			if p.writerFinal != nil {
				t.Error("expected nil final writer when disabled")
			}
		})
	}
}

func TestNew_DefaultTopics(t *testing.T) {
	p := New(&Config{Enabled: false})

	if p.topicPartial != DefaultTopicPartial {
		t.Errorf("expected default partial topic, got %s", p.topicPartial)
	}
	if p.topicFinal != DefaultTopicFinal {
		t.Errorf("expected default final topic, got %s", p.topicFinal)
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		TopicPartial: "test.partial",
		TopicFinal:   "test.final",
		Principal:    "meeting-capture",
	}

	p := New(cfg)

	if p.principal != "meeting-capture" {
		t.Errorf("expected principal 'meeting-capture', got %s", p.principal)
	}
	if p.topicPartial != "test.partial" {
		t.Errorf("expected topic partial 'test.partial', got %s", p.topicPartial)
	}
	if p.topicFinal != "test.final" {
		t.Errorf("expected topic final 'test.final', got %s", p.topicFinal)
	}
}

func TestPublisher_PublishDisabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	partial := TranscriptPartial{
		EventType: DefaultTopicPartial,
		SessionID: "sess-1",
		SegmentID: "seg-1",
		Text:      "hello",
	}
	if err := p.PublishPartial(context.Background(), "sess-1", partial); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}

	final := TranscriptFinal{
		EventType: DefaultTopicFinal,
		SessionID: "sess-1",
		SegmentID: "seg-1",
		Text:      "hello world",
	}
	if err := p.PublishFinal(context.Background(), "sess-1", final); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishInvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// A channel cannot be marshalled.
	event := make(chan int)
	if err := p.PublishPartial(context.Background(), "sess-1", event); err == nil {
		t.Error("expected error for unmarshalable partial event")
	}
	if err := p.PublishFinal(context.Background(), "sess-1", event); err == nil {
		t.Error("expected error for unmarshalable final event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilWriters(t *testing.T) {
	p := &Publisher{}

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
