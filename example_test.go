package wirebus_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/wirebus/wirebus"
)

func Example() {
	bus, err := wirebus.New()
	if err != nil {
		log.Fatal(err)
	}

	bus.Register("foo.bar", func(ctx context.Context, args ...any) (any, error) {
		fmt.Println("i sez:", args[0], args[1])
		return nil, nil
	})
	bus.Register("foo.baz", func(ctx context.Context, args ...any) (any, error) {
		fmt.Println("you sez:", args[0], args[1])
		return nil, nil
	})

	evt := bus.WithFilter("foo.*").Call(context.Background(), "hello", "world")
	evt.AwaitAll(wirebus.Forever)

	// Unordered output:
	// i sez: hello world
	// you sez: hello world
}

func ExampleEvent_FirstResult() {
	bus, err := wirebus.New()
	if err != nil {
		log.Fatal(err)
	}

	bus.Register("lookup.fast", func(ctx context.Context, args ...any) (any, error) {
		return "cached:" + args[0].(string), nil
	})

	evt := bus.WithFilter("lookup.*").Call(context.Background(), "users/41")
	result, err := evt.FirstResult(0)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(result)

	// Output:
	// cached:users/41
}

func ExampleIngest() {
	bus, err := wirebus.New()
	if err != nil {
		log.Fatal(err)
	}

	bus.Register("orders.created", func(ctx context.Context, args ...any) (any, error) {
		fmt.Println("order payload:", string(args[0].(json.RawMessage)))
		return nil, nil
	})

	in := wirebus.NewIngest(bus)
	evt, err := in.Feed(context.Background(), []byte(`{"topic": "orders.created", "payload": {"id": 41}}`))
	if err != nil {
		log.Fatal(err)
	}
	evt.AwaitAll(wirebus.Forever)

	// Output:
	// order payload: {"id": 41}
}
