package kafka

import (
	"testing"

	"github.com/ylxdzsw/sopipe/internal/argument"
)

func withOutputs(n int) argument.Value {
	items := make([]argument.Value, n)
	for i := range items {
		items[i] = argument.String("")
	}
	return argument.ListValue(items)
}

func TestCreateParsesBrokersAndTopic(t *testing.T) {
	c := New()
	a, err := c.Create(argument.List{
		{Name: argument.KeyFunctionName, Value: argument.String("kafka")},
		{Value: argument.String("broker1:9092,broker2:9092")},
		{Value: argument.String("events")},
		{Name: argument.KeyOutputs, Value: withOutputs(1)},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	impl := a.(*actor)
	if len(impl.brokers) != 2 || impl.brokers[0] != "broker1:9092" || impl.brokers[1] != "broker2:9092" {
		t.Errorf("brokers = %v", impl.brokers)
	}
	if impl.topic != "events" {
		t.Errorf("topic = %q, want events", impl.topic)
	}
	if !impl.hasOutput {
		t.Error("expected hasOutput true with one output")
	}
}

func TestCreateRejectsEmptyTopic(t *testing.T) {
	c := New()
	_, err := c.Create(argument.List{
		{Name: argument.KeyFunctionName, Value: argument.String("kafka")},
		{Value: argument.String("broker1:9092")},
		{Name: argument.KeyOutputs, Value: withOutputs(0)},
	})
	if err == nil {
		t.Fatal("expected error: topic must not be empty")
	}
}

func TestCreateRejectsTwoOutputs(t *testing.T) {
	c := New()
	_, err := c.Create(argument.List{
		{Name: argument.KeyFunctionName, Value: argument.String("kafka")},
		{Value: argument.String("broker1:9092")},
		{Value: argument.String("events")},
		{Name: argument.KeyOutputs, Value: withOutputs(2)},
	})
	if err == nil {
		t.Fatal("expected error for two outputs")
	}
}

func TestSpawnSourcePanicsWithoutOutput(t *testing.T) {
	c := New()
	a, err := c.Create(argument.List{
		{Name: argument.KeyFunctionName, Value: argument.String("kafka")},
		{Value: argument.String("broker1:9092")},
		{Value: argument.String("events")},
		{Name: argument.KeyOutputs, Value: withOutputs(0)},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected SpawnSource to panic for a sink-only configuration")
		}
	}()
	a.SpawnSource(nil)
}
