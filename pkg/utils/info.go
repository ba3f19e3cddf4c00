package util

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// FormatInfo renders info as "key:value" lines sorted by key.
func FormatInfo(info map[string]string) string {
	var builder strings.Builder
	for _, k := range sortedKeys(info) {
		builder.WriteString(k)
		builder.WriteString(":")
		builder.WriteString(info[k])
		builder.WriteString("\n")
	}
	return builder.String()
}

// FormatInfoSection prefixes FormatInfo with a "# title" header line.
func FormatInfoSection(title string, info map[string]string) string {
	return "# " + title + "\n" + FormatInfo(info)
}

// WriteInfoSections writes each section in the given order, separated by a
// blank line. Titles missing from sections are skipped.
func WriteInfoSections(w io.Writer, order []string, sections map[string]map[string]string) error {
	first := true
	for _, title := range order {
		info, ok := sections[title]
		if !ok {
			continue
		}
		if !first {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		first = false
		if _, err := io.WriteString(w, FormatInfoSection(title, info)); err != nil {
			return fmt.Errorf("write %s section: %w", title, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
