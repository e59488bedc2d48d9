package schema

import (
	"fmt"

	"github.com/danmuck/objctl/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs.
const (
	MsgExecute  uint32 = 1
	MsgOutput   uint32 = 2
	MsgComplete uint32 = 3
	MsgError    uint32 = 4
)

// Field IDs.
const (
	FieldExecutionID uint16 = 1

	FieldModuleID   uint16 = 100
	FieldBinaryName uint16 = 101
	FieldBinaryDir  uint16 = 102
	FieldArguments  uint16 = 103

	FieldSeq  uint16 = 200
	FieldText uint16 = 201

	FieldFragments uint16 = 300

	FieldCode   uint16 = 400
	FieldReason uint16 = 401
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgExecute: {
		{FieldExecutionID, tlv.TypeString},
		{FieldModuleID, tlv.TypeString},
		{FieldBinaryName, tlv.TypeString},
		{FieldArguments, tlv.TypeBytes},
	},
	MsgOutput: {
		{FieldExecutionID, tlv.TypeString},
		{FieldSeq, tlv.TypeU64},
		{FieldText, tlv.TypeString},
	},
	MsgComplete: {
		{FieldExecutionID, tlv.TypeString},
		{FieldFragments, tlv.TypeU64},
	},
	MsgError: {
		{FieldExecutionID, tlv.TypeString},
		{FieldCode, tlv.TypeString},
		{FieldReason, tlv.TypeString},
	},
}

// Name returns a readable message type for logs.
func Name(messageType uint32) string {
	switch messageType {
	case MsgExecute:
		return "execute"
	case MsgOutput:
		return "output"
	case MsgComplete:
		return "complete"
	case MsgError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", messageType)
	}
}

// Validate enforces required fields and their types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Error().
				Str("message", Name(messageType)).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Error().
				Str("message", Name(messageType)).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	log.Trace().Str("message", Name(messageType)).Int("fields", len(fields)).Msg("schema.Validate ok")
	return nil
}
