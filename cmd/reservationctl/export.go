package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
	"github.com/vladislavdragonenkov/hrm/internal/service/reservation"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func runExport(store *reservation.Store, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	format := fs.String("format", formatJSON, "output format: json|yaml")
	path := fs.String("out", "", "write to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := encodeReservations(store.GetAll(), *format)
	if err != nil {
		return err
	}

	if *path == "" {
		_, err = out.Write(data)
		return err
	}
	if err := os.WriteFile(*path, data, 0o644); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	_, err = fmt.Fprintf(out, "exported %d reservations to %s\n", len(store.GetAll()), *path)
	return err
}

// encodeReservations сериализует коллекцию; пустая коллекция остаётся пустым списком.
func encodeReservations(items []domain.Reservation, format string) ([]byte, error) {
	if items == nil {
		items = []domain.Reservation{}
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case formatJSON:
		data, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(data, '\n'), nil
	case formatYAML, "yml":
		data, err := yaml.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q (use json|yaml)", errUsage, format)
	}
}
