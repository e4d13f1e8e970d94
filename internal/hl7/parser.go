// Package hl7 extracts structured observations from HL7 v2 result payloads.
// It is a thin structured-field reader over segments and pipe-delimited
// fields, not a full grammar: byte-level encoding rules (escape sequences,
// repetition, alternate delimiters) are out of scope.
package hl7

import (
	"fmt"
	"strings"
)

// Observation is one OBX result line.
type Observation struct {
	SetID string `json:"setId"`
	Code  string `json:"code"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
	Flag  string `json:"flag,omitempty"`
}

// Result is the structured view of one result message.
type Result struct {
	MessageType  string        `json:"messageType"`
	Observations []Observation `json:"observations"`
}

// Parser parses raw HL7 payloads. Satisfies the ingestion listener's parser
// port.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse reads segments from the payload. It requires an MSH header and at
// least one OBX observation; anything else is a parse error the listener
// records as a failed ingestion.
func (p *Parser) Parse(raw []byte) (Result, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return Result{}, fmt.Errorf("empty payload")
	}

	segments := splitSegments(text)
	if len(segments) == 0 || !strings.HasPrefix(segments[0], "MSH|") {
		return Result{}, fmt.Errorf("missing MSH header segment")
	}

	var result Result
	mshFields := strings.Split(segments[0], "|")
	// MSH-9 is the message type; MSH-1 is the field separator itself, so the
	// slice index is offset by one.
	if len(mshFields) > 8 {
		result.MessageType = mshFields[8]
	}

	for _, seg := range segments[1:] {
		if !strings.HasPrefix(seg, "OBX|") {
			continue
		}
		obs, err := parseOBX(seg)
		if err != nil {
			return Result{}, err
		}
		result.Observations = append(result.Observations, obs)
	}
	if len(result.Observations) == 0 {
		return Result{}, fmt.Errorf("no OBX observation segments")
	}
	return result, nil
}

func parseOBX(segment string) (Observation, error) {
	fields := strings.Split(segment, "|")
	// OBX|setID|valueType|code|sub|value|unit|range|flag|...
	if len(fields) < 6 {
		return Observation{}, fmt.Errorf("OBX segment has %d fields, need at least 6", len(fields))
	}
	obs := Observation{
		SetID: fields[1],
		Code:  componentOf(fields[3]),
		Value: fields[5],
	}
	if len(fields) > 6 {
		obs.Unit = componentOf(fields[6])
	}
	if len(fields) > 8 {
		obs.Flag = fields[8]
	}
	if obs.Code == "" {
		return Observation{}, fmt.Errorf("OBX segment missing observation code")
	}
	return obs, nil
}

// componentOf returns the first component of a composite field (CE/CWE types
// carry code^text^system).
func componentOf(field string) string {
	if i := strings.IndexByte(field, '^'); i >= 0 {
		return field[:i]
	}
	return field
}

func splitSegments(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\r' || r == '\n'
	})
	out := raw[:0]
	for _, seg := range raw {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
