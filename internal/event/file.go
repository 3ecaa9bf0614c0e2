package event

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// File is the events definition document read by the report command.
type File struct {
	ChannelName string `json:"channel_name"`
	Events      []struct {
		EventName          string                     `json:"event_name"`
		City               string                     `json:"city"`
		DateTime           int64                      `json:"date_time"`
		Description        string                     `json:"description"`
		GeneralInformation map[string]json.RawMessage `json:"general_information"`
	} `json:"events"`
}

// LoadFile reads an events file. The returned events carry the file's channel
// and no owner. Non-string general information values keep their JSON text.
// An event that fails Validate rejects the whole file.
func LoadFile(path string) (string, []Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("load events file: %w", err)
	}
	var doc File
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", nil, fmt.Errorf("parse events file %s: %w", path, err)
	}
	channel := strings.TrimSpace(doc.ChannelName)
	if channel == "" {
		return "", nil, fmt.Errorf("parse events file %s: missing channel_name", path)
	}

	out := make([]Event, 0, len(doc.Events))
	for i, item := range doc.Events {
		info := make(map[string]string, len(item.GeneralInformation))
		for k, v := range item.GeneralInformation {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				info[k] = s
				continue
			}
			info[k] = string(v)
		}
		e := Event{
			Channel:     channel,
			City:        item.City,
			Name:        item.EventName,
			DateTime:    item.DateTime,
			Description: item.Description,
			GeneralInfo: info,
		}
		if err := Validate(e); err != nil {
			return "", nil, fmt.Errorf("parse events file %s: event %d: %w", path, i, err)
		}
		out = append(out, e)
	}
	return channel, out, nil
}
