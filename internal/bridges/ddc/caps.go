package ddc

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Top-level keys recognised in a capabilities report.
// Any other key is silently ignored.
const (
	// capKeyProtocol names the control protocol (e.g. "monitor").
	capKeyProtocol = "prot"

	// capKeyType names the display technology (e.g. "lcd", "crt").
	capKeyType = "type"

	// capKeyMCCSVersion names the MCCS version the display implements.
	capKeyMCCSVersion = "mccs_ver"

	// capKeyWHQL names the Microsoft WHQL certification flag.
	capKeyWHQL = "mswhql"

	// capKeyVendorCommands names vendor-specific command codes.
	// The odd casing is exactly what monitors emit.
	capKeyVendorCommands = "MStarcmds"

	// capKeyVCP names the VCP feature code list.
	capKeyVCP = "vcp"
)

// CapabilityReport is the parsed form of a monitor's capabilities string.
//
// A report is built once per ParseCapabilities call and never modified
// afterwards. Callers must treat it as read-only; use DeepCopy before
// handing it to code that might mutate slices or the feature map.
type CapabilityReport struct {
	// Protocol is the value of the "prot" key, or "" if absent.
	Protocol string `json:"protocol"`

	// DisplayType is the value of the "type" key, or "" if absent.
	DisplayType string `json:"display_type"`

	// MCCSVersion is the value of the "mccs_ver" key (e.g. "2.1"),
	// or "" if absent.
	MCCSVersion string `json:"mccs_version"`

	// WHQLFlag is the value of the "mswhql" key, or nil if the key is
	// absent. Unlike the other fields, absence is meaningful here and is
	// not collapsed to the empty string.
	WHQLFlag *string `json:"mswhql,omitempty"`

	// VendorCommands holds the whitespace-separated tokens of the
	// "MStarcmds" key in source order, duplicates preserved. Empty when
	// the key is absent.
	VendorCommands []string `json:"vendor_commands,omitempty"`

	// Features maps each VCP feature code (two-digit uppercase hex) to
	// its entry. Keys are unique; when a code appears more than once in
	// the source, the later occurrence wins.
	Features map[string]Feature `json:"features"`
}

// Feature describes a single VCP feature from the capabilities report.
type Feature struct {
	// Code is the feature code as uppercase hexadecimal text, non-empty.
	Code string `json:"code"`

	// Values holds the discrete values the feature accepts, in source
	// order. Tokens keep their original casing. An empty list means the
	// feature is continuous (no discrete enumeration).
	Values []string `json:"values,omitempty"`
}

// HasDiscreteValues reports whether the feature enumerates discrete values.
// A continuous feature (e.g. brightness) accepts any value up to its
// transport-reported maximum instead.
func (f Feature) HasDiscreteValues() bool {
	return len(f.Values) > 0
}

// ParseCapabilities parses a raw DDC/CI capabilities string into a
// CapabilityReport.
//
// The input is the literal report obtained from a monitor's control channel:
//
//	(prot(monitor)type(lcd)model(ACME123)cmds(01 02 03 0C E3 F3)
//	 vcp(02 04 05 10 12 14(05 08 0B) 60(01 03 11) D6(01 04 05))
//	 mswhql(1)mccs_ver(2.1))
//
// One pair of enclosing outer parentheses is stripped before scanning.
// Real monitors emit slightly non-conformant strings, so parsing is lenient
// by design: unterminated groups consume to end of input, malformed tokens
// are skipped, and unknown keys are ignored. The only rejected input is an
// empty or all-whitespace string.
//
// Parameters:
//   - raw: Capabilities string as returned by the monitor
//
// Returns:
//   - CapabilityReport: Immutable parsed report
//   - error: ErrEmptyCapabilities if raw is empty or all whitespace
func ParseCapabilities(raw string) (CapabilityReport, error) {
	body := strings.TrimSpace(raw)
	if body == "" {
		return CapabilityReport{}, fmt.Errorf("%w: %q", ErrEmptyCapabilities, raw)
	}

	// Strip the enclosing parentheses independently. Unbalanced strings
	// are tolerated: stripping a ")" that closed an inner group simply
	// leaves that group unterminated, which the scanner already handles.
	if body[0] == '(' {
		body = body[1:]
	}
	if len(body) > 0 && body[len(body)-1] == ')' {
		body = body[:len(body)-1]
	}

	groups := scanCapabilityGroups(body)

	report := CapabilityReport{
		Protocol:    groups[capKeyProtocol],
		DisplayType: groups[capKeyType],
		MCCSVersion: groups[capKeyMCCSVersion],
	}

	if whql, ok := groups[capKeyWHQL]; ok {
		report.WHQLFlag = &whql
	}

	if cmds, ok := groups[capKeyVendorCommands]; ok {
		report.VendorCommands = strings.Fields(cmds)
	}

	// Absent "vcp" yields an empty (but non-nil) feature map. Duplicate
	// codes fold last-occurrence-wins.
	entries := parseFeatureList(groups[capKeyVCP])
	report.Features = make(map[string]Feature, len(entries))
	for _, entry := range entries {
		report.Features[entry.Code] = entry
	}

	return report, nil
}

// scanCapabilityGroups splits a capabilities body into top-level key/value
// entries. A key is the (whitespace-trimmed) text before the next "(", the
// value the exact substring between the matching parentheses. Nested
// parentheses inside a value are tracked with a depth counter and do not
// terminate the group.
//
// Lenient by contract: a trailing fragment with no opening "(" ends the
// scan silently, an unterminated group consumes to end of string, and a
// duplicate key overwrites the earlier entry.
func scanCapabilityGroups(s string) map[string]string {
	entries := make(map[string]string)

	pos := 0
	for pos < len(s) {
		open := strings.IndexByte(s[pos:], '(')
		if open < 0 {
			// No group follows the remaining text; stop without error.
			break
		}
		open += pos

		key := strings.TrimSpace(s[pos:open])
		value, next := readGroup(s, open)
		entries[key] = value
		pos = next
	}

	return entries
}

// readGroup reads a depth-counted parenthesised group starting at the "("
// at index open. It returns the text between the matching parentheses and
// the index just past the closing ")". If the group is never closed, the
// value runs to the end of the string.
func readGroup(s string, open int) (value string, next int) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[open+1 : i], i + 1
			}
		}
	}
	return s[open+1:], len(s)
}

// parseFeatureList parses the raw text of the "vcp" group into feature
// entries, one per code encountered, preserving source order and
// duplicates. Deduplication happens later when the report is assembled.
//
// Each entry is a maximal run of hex digits, normalised to uppercase,
// optionally followed by a parenthesised discrete value group. Bytes that
// are neither hex digits nor whitespace are skipped one at a time rather
// than failing the parse. An empty group "()" is indistinguishable from a
// continuous feature.
func parseFeatureList(s string) []Feature {
	var features []Feature

	pos := 0
	for pos < len(s) {
		// Skip whitespace between entries.
		for pos < len(s) && isSpace(s[pos]) {
			pos++
		}
		if pos >= len(s) {
			break
		}

		// Maximal hex-digit run is the candidate code.
		start := pos
		for pos < len(s) && isHexDigit(s[pos]) {
			pos++
		}
		if pos == start {
			// Malformed byte: drop it and carry on.
			pos++
			continue
		}
		code := strings.ToUpper(s[start:pos])

		// Optional discrete value group. Values keep their casing.
		for pos < len(s) && isSpace(s[pos]) {
			pos++
		}
		var values []string
		if pos < len(s) && s[pos] == '(' {
			body, next := readGroup(s, pos)
			values = strings.Fields(body)
			pos = next
		}

		features = append(features, Feature{Code: code, Values: values})
	}

	return features
}

// isSpace reports whether c is ASCII whitespace. Capability strings are
// ASCII, so a Unicode-aware check is unnecessary.
func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// isHexDigit reports whether c is a hexadecimal digit character.
func isHexDigit(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'a' && c <= 'f':
		return true
	case c >= 'A' && c <= 'F':
		return true
	}
	return false
}

// Supports reports whether the display exposes the given VCP feature code.
// The code is normalised before lookup, so "a0" and "A0" are equivalent.
func (r CapabilityReport) Supports(code string) bool {
	_, ok := r.Features[NormalizeCode(code)]
	return ok
}

// SupportsValue reports whether value is acceptable for the given feature.
// Continuous features accept any value (the transport enforces the
// maximum); discrete features accept only the values enumerated in the
// report. Tokens compare as hex numbers when both sides parse, so "b"
// matches "0B" regardless of casing or leading zeros.
func (r CapabilityReport) SupportsValue(code, value string) bool {
	feature, ok := r.Features[NormalizeCode(code)]
	if !ok {
		return false
	}
	if !feature.HasDiscreteValues() {
		return true
	}

	want, wantErr := strconv.ParseUint(value, 16, 16)
	for _, v := range feature.Values {
		if strings.EqualFold(v, value) {
			return true
		}
		if wantErr != nil {
			continue
		}
		if got, err := strconv.ParseUint(v, 16, 16); err == nil && got == want {
			return true
		}
	}
	return false
}

// FeatureCodes returns the supported VCP codes in ascending hex order.
// The slice is a copy; mutating it does not affect the report.
func (r CapabilityReport) FeatureCodes() []string {
	codes := make([]string, 0, len(r.Features))
	for code := range r.Features {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// DeepCopy returns an independent copy of the report. The copy shares no
// slices or maps with the original, so callers may mutate it freely.
func (r CapabilityReport) DeepCopy() CapabilityReport {
	out := r

	if r.WHQLFlag != nil {
		flag := *r.WHQLFlag
		out.WHQLFlag = &flag
	}

	if r.VendorCommands != nil {
		out.VendorCommands = append([]string(nil), r.VendorCommands...)
	}

	out.Features = make(map[string]Feature, len(r.Features))
	for code, feature := range r.Features {
		if feature.Values != nil {
			feature.Values = append([]string(nil), feature.Values...)
		}
		out.Features[code] = feature
	}

	return out
}

// String returns a one-line summary of the report for logging.
func (r CapabilityReport) String() string {
	return fmt.Sprintf("CapabilityReport{Protocol:%q, Type:%q, MCCS:%q, Features:%d, VendorCommands:%d}",
		r.Protocol, r.DisplayType, r.MCCSVersion, len(r.Features), len(r.VendorCommands))
}
