/*
Package hl7epic exchanges clinical HL7v2 messages with an Epic integration
engine over TCP, using the ER7 text encoding and MLLP framing.

# Overview

The repository has two operational roles and one batch utility:

  - a receiver that accepts inbound MLLP connections, validates each
    message, returns an AA/AE acknowledgment, and durably captures every
    received message;
  - a transmitter that gathers outbound message files, frames them, and
    delivers them sequentially over one connection with
    reconnect-and-retry on broken connections, either once or on a
    recurring weekday schedule;
  - a stitcher that merges OBX observation segments from a response
    capture back into the matching result messages.

# Package Structure

	github.com/eastgenomics/hl7-epic-integration/pkg/mllp     - MLLP framing codec
	github.com/eastgenomics/hl7-epic-integration/pkg/er7      - structural ER7 message model
	github.com/eastgenomics/hl7-epic-integration/pkg/ack      - validation and ACK construction
	github.com/eastgenomics/hl7-epic-integration/pkg/stitch   - OBX segment merging

	internal/receiver    - per-connection read/validate/ack sessions
	internal/transmitter - delivery engine, retry policy and schedule
	internal/capture     - durable capture contract and backends
	internal/source      - outbound file enumeration and content access
	internal/config      - YAML configuration
	internal/status      - liveness and metrics endpoint

# Commands

	cmd/hl7-receiver - inbound listener daemon
	cmd/hl7-send     - outbound delivery, single-shot or scheduled
	cmd/hl7-stitch   - OBX merge across two capture directories

# Wire Protocol

Messages travel inside MLLP frames: a 0x0B start byte, the ER7 text, then
0x1C 0x0D. The receiver answers every parseable message with an HL7 ACK
whose MSA-1 is AA when the message carries the required MSH and PID
segments and AE otherwise. See pkg/mllp and pkg/ack for the details.
*/
package hl7epic
