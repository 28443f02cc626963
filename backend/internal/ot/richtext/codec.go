package richtext

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrDecode reports malformed wire input: an unknown type tag, a missing
// required field, or a wrong value shape. Every decode failure wraps it.
var ErrDecode = errors.New("malformed wire value")

// The wire format, shared with the editing client:
//
//	"a"                               character, no annotations
//	["a", {"type":"bold"}]            character with annotations
//	{"type":"paragraph"}              structural marker
//	{"type":"heading","attributes":{"level":2}}
//	{"type":"listItem","attributes":{"styles":["bullet"]}}
//
// The bare-string/array asymmetry for characters is load-bearing: an
// unannotated character is never wrapped in a one-element array.

type markerWire struct {
	Type       string     `json:"type"`
	Attributes *attrsWire `json:"attributes,omitempty"`
}

type attrsWire struct {
	Level  *int         `json:"level,omitempty"`
	Styles *[]ListStyle `json:"styles,omitempty"`
}

func (e Element) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindChar:
		if len(e.Annotations) == 0 {
			return json.Marshal(string(e.Rune))
		}
		arr := make([]any, 0, 1+len(e.Annotations))
		arr = append(arr, string(e.Rune))
		for _, a := range e.Annotations {
			arr = append(arr, a)
		}
		return json.Marshal(arr)
	case KindHeading:
		level := e.Level
		return json.Marshal(markerWire{Type: string(e.Kind), Attributes: &attrsWire{Level: &level}})
	case KindListItem:
		styles := e.Styles
		if styles == nil {
			styles = []ListStyle{}
		}
		return json.Marshal(markerWire{Type: string(e.Kind), Attributes: &attrsWire{Styles: &styles}})
	case KindParagraph, KindParagraphEnd, KindHeadingEnd,
		KindPre, KindPreEnd, KindList, KindListEnd, KindListItemEnd:
		return json.Marshal(markerWire{Type: string(e.Kind)})
	default:
		return nil, fmt.Errorf("unknown element kind %q", e.Kind)
	}
}

func (e *Element) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return fmt.Errorf("empty element: %w", ErrDecode)
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("element string: %w", ErrDecode)
		}
		r, err := singleRune(s)
		if err != nil {
			return err
		}
		*e = Element{Kind: KindChar, Rune: r}
		return nil

	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("element array: %w", ErrDecode)
		}
		if len(parts) == 0 {
			return fmt.Errorf("empty element array: %w", ErrDecode)
		}
		var s string
		if err := json.Unmarshal(parts[0], &s); err != nil {
			return fmt.Errorf("element array head is not a string: %w", ErrDecode)
		}
		r, err := singleRune(s)
		if err != nil {
			return err
		}
		anns := make([]Annotation, 0, len(parts)-1)
		for _, raw := range parts[1:] {
			ann, err := decodeAnnotation(raw)
			if err != nil {
				return err
			}
			anns = append(anns, ann)
		}
		*e = Element{Kind: KindChar, Rune: r, Annotations: anns}
		return nil

	case '{':
		var m struct {
			Type       *string `json:"type"`
			Attributes *struct {
				Level  *int         `json:"level"`
				Styles *[]ListStyle `json:"styles"`
			} `json:"attributes"`
		}
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("element object: %w", ErrDecode)
		}
		if m.Type == nil {
			return fmt.Errorf("element object missing \"type\": %w", ErrDecode)
		}
		kind := ElementKind(*m.Type)
		switch kind {
		case KindHeading:
			if m.Attributes == nil || m.Attributes.Level == nil {
				return fmt.Errorf("heading missing \"level\": %w", ErrDecode)
			}
			*e = Element{Kind: KindHeading, Level: *m.Attributes.Level}
		case KindListItem:
			if m.Attributes == nil || m.Attributes.Styles == nil {
				return fmt.Errorf("listItem missing \"styles\": %w", ErrDecode)
			}
			for _, s := range *m.Attributes.Styles {
				if s != StyleBullet && s != StyleNumber {
					return fmt.Errorf("unknown list style %q: %w", s, ErrDecode)
				}
			}
			*e = Element{Kind: KindListItem, Styles: *m.Attributes.Styles}
		case KindParagraph, KindParagraphEnd, KindHeadingEnd,
			KindPre, KindPreEnd, KindList, KindListEnd, KindListItemEnd:
			*e = Element{Kind: kind}
		default:
			return fmt.Errorf("unknown element type %q: %w", *m.Type, ErrDecode)
		}
		return nil

	default:
		return fmt.Errorf("element is not a string, array or object: %w", ErrDecode)
	}
}

func (op Operation) MarshalJSON() ([]byte, error) {
	switch op.Kind {
	case OpRetain:
		return json.Marshal(struct {
			Type   string `json:"type"`
			Length int    `json:"length"`
		}{string(op.Kind), op.Length})
	case OpInsert, OpRemove:
		data := op.Data
		if data == nil {
			data = []Element{}
		}
		return json.Marshal(struct {
			Type string    `json:"type"`
			Data []Element `json:"data"`
		}{string(op.Kind), data})
	case OpAnnotate:
		return json.Marshal(struct {
			Type       string     `json:"type"`
			Bias       Bias       `json:"bias"`
			Annotation Annotation `json:"annotation"`
		}{string(op.Kind), op.Bias, op.Annotation})
	default:
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func (op *Operation) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type       *string         `json:"type"`
		Length     *int            `json:"length"`
		Data       *[]Element      `json:"data"`
		Bias       *string         `json:"bias"`
		Annotation json.RawMessage `json:"annotation"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("operation object: %w", ErrDecode)
	}
	if raw.Type == nil {
		return fmt.Errorf("operation missing \"type\": %w", ErrDecode)
	}
	switch OpKind(*raw.Type) {
	case OpRetain:
		if raw.Length == nil {
			return fmt.Errorf("retain missing \"length\": %w", ErrDecode)
		}
		*op = Retain(*raw.Length)
	case OpInsert:
		if raw.Data == nil {
			return fmt.Errorf("insert missing \"data\": %w", ErrDecode)
		}
		*op = Insert(*raw.Data...)
	case OpRemove:
		if raw.Data == nil {
			return fmt.Errorf("remove missing \"data\": %w", ErrDecode)
		}
		*op = Remove(*raw.Data...)
	case OpAnnotate:
		if raw.Bias == nil || (Bias(*raw.Bias) != BiasStart && Bias(*raw.Bias) != BiasStop) {
			return fmt.Errorf("annotate bias must be \"start\" or \"stop\": %w", ErrDecode)
		}
		if raw.Annotation == nil {
			return fmt.Errorf("annotate missing \"annotation\": %w", ErrDecode)
		}
		ann, err := decodeAnnotation(raw.Annotation)
		if err != nil {
			return err
		}
		*op = Annotate(Bias(*raw.Bias), ann)
	default:
		return fmt.Errorf("unknown operation type %q: %w", *raw.Type, ErrDecode)
	}
	return nil
}

func decodeAnnotation(raw json.RawMessage) (Annotation, error) {
	var a struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return Annotation{}, fmt.Errorf("annotation is not an object: %w", ErrDecode)
	}
	if a.Type == nil {
		return Annotation{}, fmt.Errorf("annotation missing \"type\": %w", ErrDecode)
	}
	return Annotation{Type: *a.Type}, nil
}

func singleRune(s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("character %q is not a single rune: %w", s, ErrDecode)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
