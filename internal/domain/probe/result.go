package probe

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the normalized outcome of one probe invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// Severity is ordered: info < low < medium < high < critical.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"info", "low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < SeverityInfo || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity accepts the lower-case names produced by String.
func ParseSeverity(name string) (Severity, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range severityNames {
		if n == name {
			return Severity(i), nil
		}
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q", name)
}

func (s Severity) MarshalText() ([]byte, error) {
	if s < SeverityInfo || s > SeverityCritical {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Finding is one observation produced by a probe. Treat it as immutable.
type Finding struct {
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// NewFinding copies detail so later changes by the caller do not leak in.
func NewFinding(severity Severity, message string, detail map[string]any) Finding {
	f := Finding{Severity: severity, Message: message}
	if len(detail) > 0 {
		f.Detail = make(map[string]any, len(detail))
		for k, v := range detail {
			f.Detail[k] = v
		}
	}
	return f
}

// ErrorInfo is attached to every result whose status is not success.
type ErrorInfo struct {
	Category Category `json:"category"`
	Message  string   `json:"message"`
}

// Result is the contract every probe returns.
type Result struct {
	Status   Status         `json:"status"`
	Findings []Finding      `json:"findings"`
	Summary  string         `json:"summary"`
	Detail   map[string]any `json:"detail,omitempty"`
	Error    *ErrorInfo     `json:"error,omitempty"`
}

// Success builds a successful result. Findings keep their order.
func Success(summary string, detail map[string]any, findings ...Finding) Result {
	return Result{
		Status:   StatusSuccess,
		Findings: nonNil(findings),
		Summary:  summary,
		Detail:   detail,
	}
}

// Partial keeps whatever detail was collected before err occurred.
func Partial(summary string, detail map[string]any, err error, findings ...Finding) Result {
	return Result{
		Status:   StatusPartial,
		Findings: nonNil(findings),
		Summary:  summary,
		Detail:   detail,
		Error:    infoFor(err),
	}
}

// Failed converts err into a failed result with an empty detail.
func Failed(err error) Result {
	info := infoFor(err)
	return Result{
		Status:   StatusFailed,
		Findings: []Finding{},
		Summary:  fmt.Sprintf("%s: %s", info.Category, info.Message),
		Error:    info,
	}
}

// FailedWith builds a failed result for a known category.
func FailedWith(category Category, message string) Result {
	return Failed(&Error{Category: category, Message: message})
}

// Validate checks the structural rules a result must satisfy before it
// leaves a runner or enters the cache.
func (r Result) Validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.Status == StatusSuccess && r.Error != nil {
		return fmt.Errorf("successful result carries error info")
	}
	if r.Status != StatusSuccess && r.Error == nil {
		return fmt.Errorf("%s result is missing error info", r.Status)
	}
	return nil
}

// HighestSeverity returns the most severe finding, or false when there are none.
func (r Result) HighestSeverity() (Severity, bool) {
	if len(r.Findings) == 0 {
		return SeverityInfo, false
	}
	highest := SeverityInfo
	for _, f := range r.Findings {
		if f.Severity > highest {
			highest = f.Severity
		}
	}
	return highest, true
}

// Encode serializes the result for storage.
func (r Result) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}

// Decode parses a stored result and rejects structurally invalid ones.
func Decode(data []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("failed to decode result: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Result{}, fmt.Errorf("failed to decode result: %w", err)
	}
	if r.Findings == nil {
		r.Findings = []Finding{}
	}
	return r, nil
}

func infoFor(err error) *ErrorInfo {
	if err == nil {
		return &ErrorInfo{Category: CategoryUnknown, Message: "unknown error"}
	}
	return &ErrorInfo{Category: Classify(err), Message: err.Error()}
}

func nonNil(findings []Finding) []Finding {
	if findings == nil {
		return []Finding{}
	}
	return findings
}
