package main

import (
	"encoding/json"
	"fmt"
	"io"

	"pairbot/models"
)

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printDecision writes the bare pair in text mode so the output can feed a
// posting script directly. An empty decision prints nothing.
func printDecision(out io.Writer, format string, d models.Decision) error {
	if format == "json" {
		return writeJSON(out, d)
	}
	if d.Empty() {
		return nil
	}
	_, err := fmt.Fprintln(out, d.Pair)
	return err
}

func printList(out io.Writer, format, key string, pairs []string) error {
	if format == "json" {
		if pairs == nil {
			pairs = []string{}
		}
		return writeJSON(out, map[string][]string{key: pairs})
	}
	for _, p := range pairs {
		if _, err := fmt.Fprintln(out, p); err != nil {
			return err
		}
	}
	return nil
}

func printValue(out io.Writer, format string, jsonValue interface{}, text string) error {
	if format == "json" {
		return writeJSON(out, jsonValue)
	}
	if text == "" {
		return nil
	}
	_, err := fmt.Fprintln(out, text)
	return err
}

func printStats(out io.Writer, format string, stats []sourceCount) error {
	if format == "json" {
		return writeJSON(out, map[string][]sourceCount{"sources": stats})
	}
	for _, s := range stats {
		count := fmt.Sprint(s.Count)
		if s.Count < 0 {
			count = "n/a"
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\n", s.Name, count); err != nil {
			return err
		}
	}
	return nil
}
