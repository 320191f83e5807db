package models

import (
	"fmt"
	"strings"
	"time"
)

// SegmentKind names an audience subset for bulk messaging.
type SegmentKind string

// Supported segment kinds.
const (
	SegmentAll         SegmentKind = "all"
	SegmentUnpaid      SegmentKind = "unpaid"
	SegmentLowBalance  SegmentKind = "low_balance"
	SegmentHighBalance SegmentKind = "high_balance"
	SegmentDay         SegmentKind = "day"
)

// Weekday is the upper-case collection day used by the billing API.
type Weekday string

// Collection days.
const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

var weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Weekdays returns the seven collection days in calendar order.
func Weekdays() []Weekday {
	return append([]Weekday(nil), weekdays...)
}

// ParseWeekday accepts any casing of a weekday name ("monday", "Monday").
func ParseWeekday(value string) (Weekday, error) {
	upper := Weekday(strings.ToUpper(strings.TrimSpace(value)))
	for _, d := range weekdays {
		if d == upper {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown weekday %q", value)
}

// Segment identifies the audience of one dispatch. Day is only set for
// SegmentDay; Mobile is only set when a day send targets a single customer.
// Segment values are comparable so a pending confirmation can be matched with ==.
type Segment struct {
	Kind   SegmentKind `json:"kind"`
	Day    Weekday     `json:"day,omitempty"`
	Mobile string      `json:"mobile,omitempty"`
}

// All returns the "every customer" segment.
func All() Segment { return Segment{Kind: SegmentAll} }

// Unpaid returns the unpaid-customers segment.
func Unpaid() Segment { return Segment{Kind: SegmentUnpaid} }

// LowBalance returns the low-balance segment.
func LowBalance() Segment { return Segment{Kind: SegmentLowBalance} }

// HighBalance returns the high-balance segment.
func HighBalance() Segment { return Segment{Kind: SegmentHighBalance} }

// DayGroup returns the segment of every customer collected on day.
func DayGroup(day Weekday) Segment { return Segment{Kind: SegmentDay, Day: day} }

// DayCustomer returns a single customer of the day's collection round.
func DayCustomer(day Weekday, mobile string) Segment {
	return Segment{Kind: SegmentDay, Day: day, Mobile: mobile}
}

// RequiresConfirmation reports whether the segment must pass the confirm gate.
func (s Segment) RequiresConfirmation() bool { return s.Kind != SegmentAll }

// IsSingleCustomer is true for a day send addressed to one mobile number.
func (s Segment) IsSingleCustomer() bool { return s.Kind == SegmentDay && s.Mobile != "" }

func (s Segment) String() string {
	switch {
	case s.Kind == SegmentDay && s.Mobile != "":
		return fmt.Sprintf("day:%s:%s", s.Day, s.Mobile)
	case s.Kind == SegmentDay:
		return "day:" + string(s.Day)
	default:
		return string(s.Kind)
	}
}

// Label is the low-cardinality form used for metric labels.
func (s Segment) Label() string { return string(s.Kind) }

// ParseSegment parses the kinds accepted on the command line and in commands.
// Dashes and underscores are interchangeable ("low-balance").
func ParseSegment(kind, day, mobile string) (Segment, error) {
	k := SegmentKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(kind)), "-", "_"))
	switch k {
	case SegmentAll, SegmentUnpaid, SegmentLowBalance, SegmentHighBalance:
		if strings.TrimSpace(day) != "" || strings.TrimSpace(mobile) != "" {
			return Segment{}, fmt.Errorf("segment %s does not take a day or mobile", k)
		}
		return Segment{Kind: k}, nil
	case SegmentDay:
		d, err := ParseWeekday(day)
		if err != nil {
			return Segment{}, err
		}
		return Segment{Kind: SegmentDay, Day: d, Mobile: strings.TrimSpace(mobile)}, nil
	default:
		return Segment{}, fmt.Errorf("unknown segment %q", kind)
	}
}

// DispatchRequest is built fresh for every send attempt and never persisted.
type DispatchRequest struct {
	Segment Segment
	Message string
}

// DispatchCommand is the queued form of a dispatch consumed by the worker.
type DispatchCommand struct {
	CommandID string            `json:"command_id"`
	Segment   string            `json:"segment"`
	Day       string            `json:"day,omitempty"`
	Mobile    string            `json:"mobile,omitempty"`
	Message   string            `json:"message"`
	TraceID   string            `json:"trace_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Meta      map[string]string `json:"meta,omitempty"`
}
