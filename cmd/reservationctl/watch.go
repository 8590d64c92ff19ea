package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/hrm/internal/app"
	"github.com/vladislavdragonenkov/hrm/internal/domain"
	"github.com/vladislavdragonenkov/hrm/internal/messaging/kafka"
)

const defaultWatchGroup = "reservationctl"

func runWatch(ctx context.Context, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	brokers := fs.String("brokers", os.Getenv("KAFKA_BROKERS"), "comma-separated Kafka brokers (fallback: KAFKA_BROKERS)")
	topic := fs.String("topic", kafka.TopicReservationEvents, "topic with reservation events")
	group := fs.String("group", defaultWatchGroup, "consumer group id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	brokerList := app.Config{KafkaBrokers: *brokers}.KafkaBrokerList()
	if len(brokerList) == 0 {
		return fmt.Errorf("%w: -brokers (or KAFKA_BROKERS) is required", errUsage)
	}

	consumer, err := kafka.NewConsumer(brokerList, *group, []string{*topic}, printEvents(out))
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return consumer.Stop()
}

// printEvents возвращает handler, печатающий по строке на событие.
// Партиции обрабатываются параллельно, поэтому запись сериализована.
func printEvents(out io.Writer) kafka.EventHandler {
	var mu sync.Mutex
	return func(_ context.Context, event domain.ReservationEvent) error {
		mu.Lock()
		defer mu.Unlock()
		_, err := fmt.Fprintln(out, formatEvent(event))
		return err
	}
}

func formatEvent(event domain.ReservationEvent) string {
	r := event.Reservation
	return fmt.Sprintf("%s %-20s %s room=%s guest=%q %s..%s",
		event.Timestamp.UTC().Format(time.RFC3339), event.Type, r.ID,
		r.RoomNumber, r.GuestName, r.CheckInDate, r.CheckOutDate)
}
