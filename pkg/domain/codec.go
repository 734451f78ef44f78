package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeNode converts a loosely typed node payload (as produced by JSON or YAML
// decoding) into a FlowNode with a typed Data variant.
// Boolean flags that default to true keep that default when the key is absent.
func DecodeNode(id string, nodeType NodeType, raw map[string]any) (FlowNode, error) {
	data, err := DecodeNodeData(nodeType, raw)
	if err != nil {
		return FlowNode{}, fmt.Errorf("node %s: %w", id, err)
	}
	return FlowNode{ID: id, Type: nodeType, Data: data}, nil
}

// DecodeNodeData decodes the payload for the given node type.
func DecodeNodeData(nodeType NodeType, raw map[string]any) (NodeData, error) {
	switch nodeType {
	case NodeTypeStart:
		d := StartData{WaitForInteraction: true}
		err := decodePayload(raw, &d)
		return d, err
	case NodeTypeMessage:
		d := MessageData{WaitForInteraction: true}
		err := decodePayload(raw, &d)
		return d, err
	case NodeTypeMedia:
		d := MediaData{MediaType: MediaImage, Controls: true, WaitForInteraction: true}
		err := decodePayload(raw, &d)
		return d, err
	case NodeTypeDelay:
		d := DelayData{ShowTyping: true}
		err := decodePayload(raw, &d)
		return d, err
	case NodeTypeInput:
		d := InputData{InputType: InputText}
		err := decodePayload(raw, &d)
		return d, err
	case NodeTypeEnd:
		d := EndData{ShowRestartButton: true}
		err := decodePayload(raw, &d)
		return d, err
	default:
		return nil, fmt.Errorf("unknown node type %q", nodeType)
	}
}

// decodePayload only overwrites fields whose keys are present in raw,
// so pre-filled defaults survive.
func decodePayload(raw map[string]any, target any) error {
	if len(raw) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
