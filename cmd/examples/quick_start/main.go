package main

import (
	"context"
	"fmt"
	"log"
	"time"

	bridge "github.com/noyzys/nautchkafe-rabbit-bridge"
	"go.uber.org/zap"
)

type greeting struct {
	Text string `json:"text"`
	Who  string `json:"who"`
}

func main() {
	// Credentials come from bridge.yaml or BRIDGE_* environment variables,
	// falling back to the local development broker
	creds, err := bridge.LoadCredentials()
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// The resource opens the transport for the Use block and disposes it
	// afterwards, whatever happens inside
	resource := bridge.NewTransportResource[greeting](
		bridge.NewAMQPConnector(creds),
		bridge.WithLogger(logger),
	)

	err = resource.Use(func(t *bridge.Transport[greeting]) error {
		ctx := context.Background()

		// Subscribe first so the queue has a consumer waiting
		err := t.Subscribe("notifications", func(ctx context.Context, msg greeting) error {
			fmt.Printf("%s, %s!\n", msg.Text, msg.Who)
			return nil
		})
		if err != nil {
			return err
		}

		// The blocking publish returns once the broker has the message
		if err := t.Publish(ctx, "notifications", greeting{Text: "Hello", Who: "sync world"}); err != nil {
			return err
		}

		// The asynchronous variants return immediately; the futures settle
		// when the work is done
		pub := t.PublishAsync(ctx, "notifications", greeting{Text: "Hello", Who: "async world"})
		if err := pub.Err(); err != nil {
			return err
		}

		fan := t.PublishMultipleAsync(ctx, []string{"notifications", "audit"}, greeting{Text: "Hi", Who: "everyone"})
		if err := fan.Err(); err != nil {
			return err
		}

		// Give the broker a moment to route everything back
		time.Sleep(2 * time.Second)

		fmt.Printf("Delivered on notifications: %d messages\n", len(t.Delivered("notifications")))
		return nil
	})
	if err != nil {
		log.Fatalf("Bridge example failed: %v", err)
	}

	fmt.Println("Quick start example completed!")
}
