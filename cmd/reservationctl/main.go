// Command reservationctl работает с коллекцией бронирований напрямую через хранилище,
// минуя HTTP API сервиса.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hrm/internal/app"
	"github.com/vladislavdragonenkov/hrm/internal/domain"
	"github.com/vladislavdragonenkov/hrm/internal/service/reservation"
)

const usage = `usage: reservationctl [flags] <command> [command flags]

commands:
  list                    print all reservations
  add                     create a reservation (-check-in, -check-out, -guest, -email, -room)
  delete -id ID           delete a reservation
  export -format FORMAT   dump the collection as json or yaml
  watch                   print reservation events from Kafka

flags:
`

var errUsage = errors.New("invalid usage")

func main() {
	_ = godotenv.Load()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) || errors.Is(err, errUsage) {
			os.Exit(2)
		}
		_, _ = fmt.Fprintf(os.Stderr, "reservationctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg := app.DefaultConfig()
	cfg.StorageDriver = app.StorageDriverFile
	var dsn string

	global := flag.NewFlagSet("reservationctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() {
		_, _ = fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}
	global.StringVar(&cfg.StorageDriver, "driver", cfg.StorageDriver, "storage driver: memory|file|redis|postgres|mysql")
	global.StringVar(&cfg.FileDir, "path", cfg.FileDir, "directory of the file storage")
	global.StringVar(&cfg.StorageKey, "key", cfg.StorageKey, "storage slot holding the collection")
	global.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address")
	global.StringVar(&cfg.RedisPassword, "redis-password", os.Getenv("HRM_REDIS_PASSWORD"), "redis password")
	global.StringVar(&cfg.RedisPrefix, "redis-prefix", cfg.RedisPrefix, "redis key prefix")
	global.StringVar(&dsn, "dsn", "", "PostgreSQL or MySQL DSN (fallback: HRM_POSTGRES_DSN / HRM_MYSQL_DSN)")
	if err := global.Parse(args); err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errUsage
	}
	command, commandArgs := rest[0], rest[1:]

	if command == "watch" {
		return runWatch(ctx, commandArgs, stdout, stderr)
	}

	cfg.PostgresDSN = firstNonEmpty(dsn, os.Getenv("HRM_POSTGRES_DSN"))
	cfg.MySQLDSN = firstNonEmpty(dsn, os.Getenv("HRM_MYSQL_DSN"))
	// схему создаёт cmd/migrate или сервис при старте
	cfg.PostgresAutoMigrate = false
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.WithField("component", "reservationctl")
	kv, closeStorage, err := app.OpenKeyValueStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStorage(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	store := reservation.NewStore(ctx, kv,
		reservation.WithKey(cfg.StorageKey),
		reservation.WithLogger(logger.WithField("layer", "store")),
	)

	switch command {
	case "list":
		if errors.Is(store.PersistError(), domain.ErrSlotCorrupted) {
			_, _ = fmt.Fprintf(stderr, "warning: slot %q is corrupted, showing an empty collection\n", store.Key())
		}
		return runList(ctx, store, kv, stdout)
	case "add":
		if err := refuseCorruptedSlot(store); err != nil {
			return err
		}
		return runAdd(ctx, store, commandArgs, stdout, stderr)
	case "delete":
		if err := refuseCorruptedSlot(store); err != nil {
			return err
		}
		return runDelete(ctx, store, commandArgs, stdout, stderr)
	case "export":
		return runExport(store, commandArgs, stdout, stderr)
	default:
		global.Usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

// refuseCorruptedSlot не даёт перезаписать слот, который не удалось разобрать:
// запись заменила бы нечитаемое содержимое пустой коллекцией.
func refuseCorruptedSlot(store *reservation.Store) error {
	if err := store.PersistError(); errors.Is(err, domain.ErrSlotCorrupted) {
		return fmt.Errorf("refusing to modify slot %q: %w", store.Key(), err)
	}
	return nil
}

func runList(ctx context.Context, store *reservation.Store, kv domain.KeyValueStore, out io.Writer) error {
	items := store.GetAll()
	if len(items) == 0 {
		if _, err := fmt.Fprintln(out, "no reservations"); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tCHECK-IN\tCHECK-OUT\tGUEST\tEMAIL\tROOM")
		for _, r := range items {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.CheckInDate, r.CheckOutDate, r.GuestName, r.GuestEmail, r.RoomNumber)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return printRevision(ctx, kv, store.Key(), out)
}

// printRevision печатает счётчик перезаписей слота, если хранилище его ведёт.
func printRevision(ctx context.Context, kv domain.KeyValueStore, key string, out io.Writer) error {
	revisioner, ok := kv.(domain.SlotRevisioner)
	if !ok {
		return nil
	}
	revision, err := revisioner.Revision(ctx, key)
	if err != nil {
		return fmt.Errorf("read slot revision: %w", err)
	}
	_, err = fmt.Fprintf(out, "slot %s revision %d\n", key, revision)
	return err
}

func runAdd(ctx context.Context, store *reservation.Store, args []string, out, errOut io.Writer) error {
	var form domain.ReservationForm

	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&form.CheckInDate, "check-in", "", "check-in date")
	fs.StringVar(&form.CheckOutDate, "check-out", "", "check-out date")
	fs.StringVar(&form.GuestName, "guest", "", "guest name")
	fs.StringVar(&form.GuestEmail, "email", "", "guest email")
	fs.StringVar(&form.RoomNumber, "room", "", "room number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fieldErrs := form.Validate(); len(fieldErrs) > 0 {
		for _, fe := range fieldErrs {
			_, _ = fmt.Fprintf(errOut, "  %s\n", fe.Error())
		}
		return domain.ErrFormInvalid
	}

	stored := store.Add(ctx, form.Reservation())
	if err := store.PersistError(); err != nil {
		return fmt.Errorf("reservation %s was not saved: %w", stored.ID, err)
	}
	_, err := fmt.Fprintln(out, stored.ID)
	return err
}

func runDelete(ctx context.Context, store *reservation.Store, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(errOut)
	id := fs.String("id", "", "reservation id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		fs.Usage()
		return fmt.Errorf("%w: -id is required", errUsage)
	}

	removed := store.Delete(ctx, strings.TrimSpace(*id))
	if err := store.PersistError(); err != nil {
		return fmt.Errorf("delete was not saved: %w", err)
	}
	if !removed {
		return fmt.Errorf("%w: %s", domain.ErrReservationNotFound, *id)
	}
	_, err := fmt.Fprintf(out, "deleted %s\n", *id)
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
