package fcm

import "testing"

func TestIsReadyFalseBeforeInit(t *testing.T) {
	var s Sender
	if s.IsReady() {
		t.Fatalf("expected IsReady() false before Init")
	}
}

func TestInitNoopWhenDisabled(t *testing.T) {
	var s Sender
	if err := s.Init(`{"enabled": false}`); err != nil {
		t.Fatalf("Init with enabled=false: %v", err)
	}
	if s.IsReady() {
		t.Fatalf("expected IsReady() false when config disables the handler")
	}
}

func TestInitRejectsMalformedConfig(t *testing.T) {
	var s Sender
	if err := s.Init(`not json`); err == nil {
		t.Fatalf("expected error on malformed config")
	}
}

func TestTruncateLeavesShortTextUnchanged(t *testing.T) {
	if got := truncate("hello"); got != "hello" {
		t.Fatalf("truncate: got %q", got)
	}
}

func TestTruncateCapsAtMaxMessageLength(t *testing.T) {
	long := make([]rune, maxMessageLength+20)
	for i := range long {
		long[i] = 'x'
	}
	got := truncate(string(long))
	gotRunes := []rune(got)
	if len(gotRunes) != maxMessageLength+1 { // +1 for the ellipsis rune
		t.Fatalf("truncate: got length %d, want %d", len(gotRunes), maxMessageLength+1)
	}
	if gotRunes[len(gotRunes)-1] != '…' {
		t.Fatalf("truncate: expected trailing ellipsis, got %q", got)
	}
}
