package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nextmonth/smartsite/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ui.RenderMuted("-")
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return formatTime(time.Time{})
	}
	return formatTime(*t)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
