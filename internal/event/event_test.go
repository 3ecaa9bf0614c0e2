package event

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/testutil/testlog"
)

func sampleEvent() Event {
	return Event{
		Channel:     "fire",
		City:        "Beer Sheva",
		Name:        "fire1",
		DateTime:    1000,
		Description: "smoke seen\n\nsecond paragraph: calm\n",
		GeneralInfo: map[string]string{"active": "true", "forces_arrival_at_scene": "false"},
		Owner:       "alice",
	}
}

func TestParseBodyExample(t *testing.T) {
	testlog.Start(t)
	body := "user:alice\ncity:Beer Sheva\nevent name:fire1\ndate time:1000\ngeneral information:\n\tactive:true\n\tforces_arrival_at_scene:false\ndescription:smoke seen\n"
	e, err := ParseBody(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.Owner != "alice" || e.City != "Beer Sheva" || e.Name != "fire1" || e.DateTime != 1000 {
		t.Fatalf("unexpected fields: %+v", e)
	}
	if len(e.GeneralInfo) != 2 || e.GeneralInfo["active"] != "true" || e.GeneralInfo["forces_arrival_at_scene"] != "false" {
		t.Fatalf("unexpected general information: %+v", e.GeneralInfo)
	}
	if e.Description != "smoke seen\n" {
		t.Fatalf("unexpected description: %q", e.Description)
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	testlog.Start(t)
	cases := []Event{
		sampleEvent(),
		{Owner: "bob", City: "Haifa", Name: "n", DateTime: -5, GeneralInfo: map[string]string{}},
		{Owner: "carol", Channel: "police", City: "a:b", Name: "x", DateTime: 1700000000, Description: "user:not-the-owner\n"},
		{Owner: "dave", City: "c ", Name: "\ttabbed", GeneralInfo: map[string]string{"eta ": "\t5:00", "": "blank key"}},
	}
	for _, in := range cases {
		if err := Validate(in); err != nil {
			t.Fatalf("validate %+v: %v", in, err)
		}
		out, err := ParseBody(EncodeBody(in))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if !out.Equal(in) {
			t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", out, in)
		}
	}
}

func TestEncodeBodyLayout(t *testing.T) {
	testlog.Start(t)
	e := sampleEvent()
	e.Channel = ""
	e.Description = "smoke seen\n"
	want := "user:alice\ncity:Beer Sheva\nevent name:fire1\ndate time:1000\ngeneral information:\n\tactive:true\n\tforces_arrival_at_scene:false\ndescription:smoke seen\n"
	if got := EncodeBody(e); got != want {
		t.Fatalf("unexpected body:\n%q\nwant\n%q", got, want)
	}
}

func TestParseBodyErrors(t *testing.T) {
	testlog.Start(t)
	if _, err := ParseBody("city:x\n"); !errors.Is(err, ErrMalformedBody) {
		t.Fatalf("expected missing user error, got %v", err)
	}
	if _, err := ParseBody("user:a\ndate time:soon\n"); !errors.Is(err, ErrMalformedBody) {
		t.Fatalf("expected date time error, got %v", err)
	}
}

func TestValidateRejectsLossyFields(t *testing.T) {
	testlog.Start(t)
	cases := map[string]func(e *Event){
		"owner injected":  func(e *Event) { e.Owner = "bob\nuser:mallory" },
		"city injected":   func(e *Event) { e.City = "x\nuser:mallory" },
		"name newline":    func(e *Event) { e.Name = "a\nb" },
		"channel newline": func(e *Event) { e.Channel = "fire\n" },
		"leading space":   func(e *Event) { e.City = " Haifa" },
		"key colon":       func(e *Event) { e.GeneralInfo = map[string]string{"eta:min": "5"} },
		"key padded":      func(e *Event) { e.GeneralInfo = map[string]string{" padded": "v"} },
		"key tabbed":      func(e *Event) { e.GeneralInfo = map[string]string{"\tk": "v"} },
		"key newline":     func(e *Event) { e.GeneralInfo = map[string]string{"a\nuser": "mallory"} },
		"value newline":   func(e *Event) { e.GeneralInfo = map[string]string{"k": "v\nuser:mallory"} },
		"value padded":    func(e *Event) { e.GeneralInfo = map[string]string{"k": " v"} },
		"description nul": func(e *Event) { e.Description = "a\x00b" },
	}
	for name, mutate := range cases {
		e := sampleEvent()
		mutate(&e)
		if err := Validate(e); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("%s: expected ErrInvalidEvent, got %v", name, err)
		}
	}
}

func TestParseBodyOwnerSetOnce(t *testing.T) {
	testlog.Start(t)
	if _, err := ParseBody("user:bob\ncity:x\nuser:mallory\n"); !errors.Is(err, ErrMalformedBody) {
		t.Fatalf("expected repeated user error, got %v", err)
	}
}

func TestParseBodySpaceAfterColon(t *testing.T) {
	testlog.Start(t)
	body := "user: alice\ncity: Beer Sheva\nevent name: fire1\ndate time: 1000\ngeneral information:\n\tactive: true\ndescription:smoke seen\n"
	e, err := ParseBody(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.Owner != "alice" || e.City != "Beer Sheva" || e.Name != "fire1" || e.DateTime != 1000 || !e.Flag("active") {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestParseBodyIgnoresUnknownLines(t *testing.T) {
	testlog.Start(t)
	e, err := ParseBody("user:a\nnoise\nweather:rain\ncity:x\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.City != "x" || e.Owner != "a" {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestWithOwnerCopies(t *testing.T) {
	testlog.Start(t)
	e := sampleEvent()
	e.Owner = ""
	stamped := e.WithOwner("dave")
	stamped.GeneralInfo["active"] = "false"
	if e.Owner != "" || e.GeneralInfo["active"] != "true" {
		t.Fatalf("original mutated: %+v", e)
	}
}

func TestSummaryTruncates(t *testing.T) {
	testlog.Start(t)
	e := Event{Description: strings.Repeat("a", 30)}
	if got := e.Summary(); got != strings.Repeat("a", 27)+"..." {
		t.Fatalf("unexpected summary: %q", got)
	}
	e.Description = "short"
	if got := e.Summary(); got != "short" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestStoreConcurrentAdds(t *testing.T) {
	testlog.Start(t)
	s := NewStore()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := sampleEvent()
			e.Name = fmt.Sprintf("e%d", i)
			s.Add(e)
		}()
	}
	wg.Wait()
	if s.Len() != 50 || len(s.Events("fire", "alice")) != 50 {
		t.Fatalf("unexpected store size len=%d bucket=%d", s.Len(), len(s.Events("fire", "alice")))
	}
	if got := s.Channels(); len(got) != 1 || got[0] != "fire" {
		t.Fatalf("unexpected channels: %v", got)
	}
}

func TestStoreArrivalOrderAndCopy(t *testing.T) {
	testlog.Start(t)
	s := NewStore()
	for _, name := range []string{"b", "a", "c"} {
		e := sampleEvent()
		e.Name = name
		s.Add(e)
	}
	got := s.Events("fire", "alice")
	if got[0].Name != "b" || got[1].Name != "a" || got[2].Name != "c" {
		t.Fatalf("arrival order lost: %v %v %v", got[0].Name, got[1].Name, got[2].Name)
	}
	got[0].Name = "mutated"
	if s.Events("fire", "alice")[0].Name != "b" {
		t.Fatalf("Events should return a copy")
	}
	if len(s.Events("fire", "nobody")) != 0 || len(s.Events("none", "alice")) != 0 {
		t.Fatalf("missing buckets should be empty")
	}
	if channels := s.Channels(); len(channels) != 1 || channels[0] != "fire" {
		t.Fatalf("unexpected channels: %v", channels)
	}
}

func TestLoadFile(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "events.json")
	content := `{
  "channel_name": "fire",
  "events": [
    {
      "event_name": "fire1",
      "city": "Beer Sheva",
      "date_time": 1000,
      "description": "smoke seen",
      "general_information": {"active": true, "forces_arrival_at_scene": "false", "units": 3}
    }
  ]
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	channel, events, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if channel != "fire" || len(events) != 1 {
		t.Fatalf("unexpected load: channel=%q events=%d", channel, len(events))
	}
	e := events[0]
	if e.Channel != "fire" || e.Owner != "" || e.DateTime != 1000 {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.GeneralInfo["active"] != "true" || e.GeneralInfo["forces_arrival_at_scene"] != "false" || e.GeneralInfo["units"] != "3" {
		t.Fatalf("unexpected general information: %+v", e.GeneralInfo)
	}
}

func TestLoadFileMissingChannel(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "events.json")
	if err := os.WriteFile(path, []byte(`{"events": []}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := LoadFile(path); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadFileRejectsInjectedLines(t *testing.T) {
	testlog.Start(t)
	for name, item := range map[string]string{
		"city":  `{"event_name": "e", "city": "x\nuser:mallory", "general_information": {}}`,
		"key":   `{"event_name": "e", "city": "x", "general_information": {"eta:min": "5"}}`,
		"value": `{"event_name": "e", "city": "x", "general_information": {"k": "v\nuser:mallory"}}`,
	} {
		path := filepath.Join(t.TempDir(), "events.json")
		content := `{"channel_name": "fire", "events": [` + item + `]}`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, _, err := LoadFile(path); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("%s: expected ErrInvalidEvent, got %v", name, err)
		}
	}
}

func TestWriteSummary(t *testing.T) {
	testlog.Start(t)
	late := sampleEvent()
	late.Name = "late"
	late.DateTime = 7200
	late.GeneralInfo = map[string]string{"active": "false", "forces_arrival_at_scene": "true"}
	early := sampleEvent()
	early.Name = "early"
	early.DateTime = 60
	early.Description = "a description that is certainly longer than the limit"

	var buf bytes.Buffer
	if err := WriteSummary(&buf, "fire", []Event{late, early}, time.UTC); err != nil {
		t.Fatalf("write summary: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Channel fire\n",
		"Total: 2\nActive: 1\nForces arrival at scene: 1\n",
		"Report_1:\n\tcity: Beer Sheva\n\tdate time: 1970-01-01 00:01\n\tevent name: early\n\tsummary: a description that is certa...\n",
		"Report_2:\n\tcity: Beer Sheva\n\tdate time: 1970-01-01 02:00\n\tevent name: late\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
