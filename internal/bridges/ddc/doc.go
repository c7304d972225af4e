// Package ddc implements the DDC/CI protocol bridge for ddc-core.
//
// This package provides monitor control via the DDC/CI command channel. It
// parses the capabilities report a monitor returns, gates feature reads and
// writes on that report, and translates between ddc-core's internal
// representation and MQTT messages.
//
// # Architecture
//
// The bridge operates as a translator between the core and the monitors:
//
//	┌─────────────────┐          ┌─────────────────┐
//	│    ddc-core     │   MQTT   │   DDC Bridge    │  Transport
//	│      (API)      │◄────────►│   (this pkg)    │◄──────────► Monitors
//	└─────────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Parse monitor capability strings into CapabilityReport values
//   - Probe displays enumerated by the transport and register them
//   - Translate MQTT commands into VCP feature reads/writes
//   - Publish state changes, acknowledgments, and health status
//   - Poll tracked feature values at a configurable interval
//
// # Capabilities
//
// A monitor describes itself with an ASCII report of nested parenthesised
// key/value groups:
//
//	(prot(monitor)type(lcd)mccs_ver(2.1)vcp(10 12 60(01 03 11)))
//
// ParseCapabilities converts that report into an immutable CapabilityReport.
// Real monitors deviate from the grammar, so the parser is deliberately
// lenient: it consumes what it can interpret and ignores the rest.
//
// Example:
//
//	report, err := ddc.ParseCapabilities(raw)
//	if err != nil {
//	    return err
//	}
//	if report.Supports(ddc.FormatCode(byte(ddc.VCPBrightness))) {
//	    // brightness is controllable
//	}
//
// # VCP Codes
//
// MCCS defines the VCP code space. This package carries a table of common
// codes (brightness 0x10, contrast 0x12, input source 0x60, power mode
// 0xD6, ...) with state keys and command aliases for the rest of the
// pipeline.
//
// # Transport Boundary
//
// The byte-level channel to a physical monitor (I²C handles, OS control
// calls) lives behind the Transport interface. The package ships a simulated
// transport for tests and demo deployments.
//
// # Thread Safety
//
// ParseCapabilities is pure and safe to call concurrently. All exported
// types are safe for concurrent use from multiple goroutines.
//
// # References
//
//   - VESA DDC/CI and MCCS specifications: https://vesa.org
//   - ddc-core DDC spec: docs/protocols/ddc.md
package ddc
