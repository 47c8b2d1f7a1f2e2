package notify

import (
	"context"
	"testing"
	"time"
)

func TestChannelBusWakes(t *testing.T) {
	bus := NewChannelBus()
	if err := bus.Publish(context.Background()); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	select {
	case <-bus.Wake():
	case <-time.After(time.Second):
		t.Fatal("expected wake signal")
	}
}

func TestChannelBusCoalesces(t *testing.T) {
	bus := NewChannelBus()
	for i := 0; i < 10; i++ {
		if err := bus.Publish(context.Background()); err != nil {
			t.Fatalf("Publish returned error: %v", err)
		}
	}
	<-bus.Wake()
	select {
	case <-bus.Wake():
		t.Fatal("signals should coalesce into a single wakeup")
	default:
	}
}
