// Command swimfit prints a swim FIT file as a normalized activity.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"example.com/swimlog/internal/domain"
	"example.com/swimlog/internal/fitimport"
)

type output struct {
	domain.Activity
	Pace          string `json:"pace"`
	DurationLabel string `json:"duration_label"`
}

func main() {
	tz := flag.String("tz", "Local", "time zone the session date is taken in")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: swimfit [-tz zone] file.fit\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *tz); err != nil {
		fmt.Fprintln(os.Stderr, "swimfit:", err)
		os.Exit(1)
	}
}

func run(path, tz string) error {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	record, err := fitimport.Decode(f, loc)
	if err != nil {
		return err
	}
	activity, err := domain.Normalizer{Location: loc}.Normalize(record)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output{
		Activity:      activity,
		Pace:          activity.Pace(),
		DurationLabel: domain.FormatMinutes(activity.DurationMinutes),
	})
}
