// Package wire encodes the console<->agent messages carried by the MQTT
// adapter: execute, output, complete and error.
package wire

import (
	"fmt"
	"strings"

	"github.com/danmuck/objctl/internal/protocol/frame"
	"github.com/danmuck/objctl/internal/protocol/schema"
	"github.com/danmuck/objctl/internal/protocol/tlv"
)

// Execute asks the agent to load and run one object module.
type Execute struct {
	ExecutionID string
	ModuleID    string
	BinaryName  string
	BinaryDir   string
	Arguments   []byte
}

func (e Execute) Validate() error {
	if strings.TrimSpace(e.ExecutionID) == "" {
		return fmt.Errorf("execute missing execution_id")
	}
	if strings.TrimSpace(e.ModuleID) == "" {
		return fmt.Errorf("execute missing module_id")
	}
	if strings.TrimSpace(e.BinaryName) == "" {
		return fmt.Errorf("execute missing binary_name")
	}
	return nil
}

// Output is one fragment of module output. Seq starts at 1 per execution.
type Output struct {
	ExecutionID string
	Seq         uint64
	Text        string
}

func (o Output) Validate() error {
	if strings.TrimSpace(o.ExecutionID) == "" {
		return fmt.Errorf("output missing execution_id")
	}
	if o.Seq == 0 {
		return fmt.Errorf("output seq must be >= 1")
	}
	return nil
}

// Complete ends an execution. Fragments is the number of output frames sent.
type Complete struct {
	ExecutionID string
	Fragments   uint64
}

func (c Complete) Validate() error {
	if strings.TrimSpace(c.ExecutionID) == "" {
		return fmt.Errorf("complete missing execution_id")
	}
	return nil
}

// Failure ends an execution with an agent-side error.
type Failure struct {
	ExecutionID string
	Code        string
	Reason      string
}

func (f Failure) Validate() error {
	if strings.TrimSpace(f.ExecutionID) == "" {
		return fmt.Errorf("error missing execution_id")
	}
	if strings.TrimSpace(f.Code) == "" {
		return fmt.Errorf("error missing code")
	}
	return nil
}

func EncodeExecute(messageID uint64, e Execute) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldExecutionID, e.ExecutionID),
		tlv.String(schema.FieldModuleID, e.ModuleID),
		tlv.String(schema.FieldBinaryName, e.BinaryName),
		tlv.Bytes(schema.FieldArguments, e.Arguments),
	}
	if v := strings.TrimSpace(e.BinaryDir); v != "" {
		fields = append(fields, tlv.String(schema.FieldBinaryDir, v))
	}
	return encode(messageID, schema.MsgExecute, 0, fields)
}

func DecodeExecute(f frame.Frame) (Execute, error) {
	fields, err := decode(f, schema.MsgExecute)
	if err != nil {
		return Execute{}, err
	}
	args, _ := tlv.GetField(fields, schema.FieldArguments)
	return Execute{
		ExecutionID: getRequiredString(fields, schema.FieldExecutionID),
		ModuleID:    getRequiredString(fields, schema.FieldModuleID),
		BinaryName:  getRequiredString(fields, schema.FieldBinaryName),
		BinaryDir:   getOptionalString(fields, schema.FieldBinaryDir),
		Arguments:   args.Value,
	}, nil
}

func EncodeOutput(messageID uint64, o Output) ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return encode(messageID, schema.MsgOutput, 0, []tlv.Field{
		tlv.String(schema.FieldExecutionID, o.ExecutionID),
		tlv.U64(schema.FieldSeq, o.Seq),
		tlv.String(schema.FieldText, o.Text),
	})
}

func DecodeOutput(f frame.Frame) (Output, error) {
	fields, err := decode(f, schema.MsgOutput)
	if err != nil {
		return Output{}, err
	}
	seqField, _ := tlv.GetField(fields, schema.FieldSeq)
	seq, err := seqField.Uint64()
	if err != nil {
		return Output{}, err
	}
	out := Output{
		ExecutionID: getRequiredString(fields, schema.FieldExecutionID),
		Seq:         seq,
		Text:        getRequiredString(fields, schema.FieldText),
	}
	return out, out.Validate()
}

func EncodeComplete(messageID uint64, c Complete) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return encode(messageID, schema.MsgComplete, 0, []tlv.Field{
		tlv.String(schema.FieldExecutionID, c.ExecutionID),
		tlv.U64(schema.FieldFragments, c.Fragments),
	})
}

func DecodeComplete(f frame.Frame) (Complete, error) {
	fields, err := decode(f, schema.MsgComplete)
	if err != nil {
		return Complete{}, err
	}
	n, _ := tlv.GetField(fields, schema.FieldFragments)
	count, err := n.Uint64()
	if err != nil {
		return Complete{}, err
	}
	return Complete{
		ExecutionID: getRequiredString(fields, schema.FieldExecutionID),
		Fragments:   count,
	}, nil
}

func EncodeFailure(messageID uint64, fl Failure) ([]byte, error) {
	if err := fl.Validate(); err != nil {
		return nil, err
	}
	return encode(messageID, schema.MsgError, frame.FlagIsError, []tlv.Field{
		tlv.String(schema.FieldExecutionID, fl.ExecutionID),
		tlv.String(schema.FieldCode, fl.Code),
		tlv.String(schema.FieldReason, fl.Reason),
	})
}

func DecodeFailure(f frame.Frame) (Failure, error) {
	fields, err := decode(f, schema.MsgError)
	if err != nil {
		return Failure{}, err
	}
	return Failure{
		ExecutionID: getRequiredString(fields, schema.FieldExecutionID),
		Code:        getRequiredString(fields, schema.FieldCode),
		Reason:      getRequiredString(fields, schema.FieldReason),
	}, nil
}

func encode(messageID uint64, messageType uint32, flags uint16, fields []tlv.Field) ([]byte, error) {
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	return frame.Marshal(frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: messageType,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	})
}

func decode(f frame.Frame, messageType uint32) ([]tlv.Field, error) {
	if f.Header.MessageType != messageType {
		return nil, fmt.Errorf("wire: expected %s frame, got %s",
			schema.Name(messageType), schema.Name(f.Header.MessageType))
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func getRequiredString(fields []tlv.Field, id uint16) string {
	f, _ := tlv.GetField(fields, id)
	return string(f.Value)
}

func getOptionalString(fields []tlv.Field, id uint16) string {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return ""
	}
	return string(f.Value)
}
