package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFailureCancelsSiblings(t *testing.T) {
	g := New(context.Background(), zerolog.Nop())
	boom := errors.New("boom")
	g.Go("blocker", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	g.Go("failer", func(context.Context) error { return boom })

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Fatalf("Wait = %v, want boom", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sibling was not cancelled")
	}
}

func TestCleanExitKeepsOthersRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := New(ctx, zerolog.Nop())
	g.Go("quick", func(context.Context) error { return nil })
	g.Go("long", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	time.Sleep(20 * time.Millisecond)
	if g.Context().Err() != nil {
		t.Fatal("clean exit cancelled the group")
	}
	cancel()
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait = %v", err)
	}
}
