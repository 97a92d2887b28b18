package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatLine renders one notification as a single log line.
func (t Theme) FormatLine(it Item) string {
	ts := time.Unix(it.Notification.Timestamp, 0).Format("15:04:05")
	topic := it.Topic
	if topic == "" {
		topic = "-"
	}
	return fmt.Sprintf("%s %s %s %s",
		t.Dim.Render(ts),
		t.Topic.Render(topic),
		t.TypeStyle(it.Notification.Type).Render(it.Notification.Type),
		Summary(it.Notification.Data),
	)
}

// Summary renders data as compact key=value pairs, sorted by key.
func Summary(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatValue(data[k]))
	}
	return strings.Join(parts, " ")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " \t") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case nil:
		return "null"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
