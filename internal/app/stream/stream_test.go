package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/platform/platformtest"
)

type scriptedSource struct {
	statuses []Status
	errs     []error
	i        int
}

func (s *scriptedSource) Status(context.Context) (Status, error) {
	st := s.statuses[s.i]
	var err error
	if s.i < len(s.errs) {
		err = s.errs[s.i]
	}
	s.i++
	return st, err
}

func newNotifier(source StatusSource, platform *platformtest.Fake) *Notifier {
	return NewNotifier(source, platform, zap.NewNop(), "lives", "streamer", time.Minute)
}

func TestNotifyOnceWhileLive(t *testing.T) {
	src := &scriptedSource{statuses: []Status{
		{Live: true, Title: "Speedrun", URL: "https://twitch.tv/streamer"},
		{Live: true, Title: "Speedrun", URL: "https://twitch.tv/streamer"},
		{Live: true, Title: "Speedrun", URL: "https://twitch.tv/streamer"},
	}}
	platform := &platformtest.Fake{}
	n := newNotifier(src, platform)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n.Check(ctx)
	}
	if len(platform.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(platform.Messages))
	}
	if !strings.Contains(platform.Messages[0].Content, "Speedrun") {
		t.Fatalf("announcement missing title: %q", platform.Messages[0].Content)
	}
}

func TestReArmAfterOffline(t *testing.T) {
	src := &scriptedSource{statuses: []Status{
		{Live: true, Title: "Run 1"},
		{Live: false},
		{Live: true, Title: "Run 2"},
	}}
	platform := &platformtest.Fake{}
	n := newNotifier(src, platform)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n.Check(ctx)
	}
	if len(platform.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 (one per stream)", len(platform.Messages))
	}
}

func TestSourceErrorKeepsState(t *testing.T) {
	src := &scriptedSource{
		statuses: []Status{
			{Live: true, Title: "Run"},
			{},
			{Live: true, Title: "Run"},
		},
		errs: []error{nil, errors.New("twitch 500"), nil},
	}
	platform := &platformtest.Fake{}
	n := newNotifier(src, platform)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n.Check(ctx)
	}
	// The failed poll neither re-announces nor resets the live flag.
	if len(platform.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(platform.Messages))
	}
}

func TestSendFailureRetriesNextPoll(t *testing.T) {
	src := &scriptedSource{statuses: []Status{
		{Live: true, Title: "Run"},
		{Live: true, Title: "Run"},
	}}
	platform := &platformtest.Fake{}
	platform.Errors = map[string]error{"SendMessage": errors.New("api down")}
	n := newNotifier(src, platform)
	ctx := context.Background()

	n.Check(ctx)
	platform.Errors = nil
	n.Check(ctx)

	if len(platform.Messages) != 1 {
		t.Fatalf("messages = %d, want 1 after retry", len(platform.Messages))
	}
}
