package events

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/oceanlog/oceanlog/pkg/models"
)

// WriteCSV renders events as CSV. Event options are flattened into one
// `event_option_<name>` column per distinct option name, columns appearing
// in first-seen order; events lacking an option leave the cell empty.
func WriteCSV(w io.Writer, evs []models.Event) error {
	var optionNames []string
	seen := map[string]bool{}
	for _, ev := range evs {
		for _, opt := range ev.Options {
			if !seen[opt.Name] {
				seen[opt.Name] = true
				optionNames = append(optionNames, opt.Name)
			}
		}
	}

	cw := csv.NewWriter(w)
	header := []string{"id", "ts", "event_author", "event_value", "event_free_text"}
	for _, name := range optionNames {
		header = append(header, "event_option_"+name)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, ev := range evs {
		row := []string{ev.ID, ev.TS.UTC().Format(time.RFC3339Nano), ev.Author, ev.Value, ev.FreeText}
		for _, name := range optionNames {
			v, _ := ev.OptionValue(name)
			row = append(row, v)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
