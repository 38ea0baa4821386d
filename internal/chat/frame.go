package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// targetRules match the username rules, so a dm target can never carry
// control characters into a store key.
const targetRules = "max=64,printascii"

// InboundFrame is the JSON object a client sends. To is only read for dm
// frames.
type InboundFrame struct {
	Type      string `json:"type" validate:"required,oneof=chat dm"`
	Message   string `json:"message"`
	To        string `json:"to,omitempty" validate:"required_if=Type dm"`
	UploadURL string `json:"upload_url,omitempty" validate:"omitempty,max=2048"`
}

// DecodeInbound parses a raw client frame sent by sender into a validated
// MessageEvent stamped with at. Shape errors wrap ErrParse; addressing
// errors are ErrMissingTarget or ErrSelfTarget.
func DecodeInbound(sender string, raw []byte, at time.Time) (MessageEvent, error) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return MessageEvent{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := validate.Struct(frame); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				if fe.Field() == "To" && fe.Tag() == "required_if" {
					return MessageEvent{}, ErrMissingTarget
				}
			}
		}
		return MessageEvent{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	ev := MessageEvent{
		Kind:          Kind(frame.Type),
		Sender:        sender,
		Body:          frame.Message,
		AttachmentURL: frame.UploadURL,
		Timestamp:     at.UTC(),
	}
	if ev.Kind == KindDirect {
		if err := validate.Var(frame.To, targetRules); err != nil {
			return MessageEvent{}, fmt.Errorf("%w: to: %v", ErrParse, err)
		}
		ev.Target = frame.To
	}
	if err := ev.Validate(); err != nil {
		return MessageEvent{}, err
	}
	return ev, nil
}

type chatFrame struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	UploadURL string `json:"upload_url"`
}

type directFrame struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	Message   string `json:"message"`
	UploadURL string `json:"upload_url"`
}

type systemFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EncodeChat renders the frame every subscriber receives for a chat message.
func EncodeChat(ev MessageEvent) []byte {
	return encode(chatFrame{Type: "chat", Username: ev.Sender, Message: ev.Body, UploadURL: ev.AttachmentURL})
}

// EncodeDirect renders the frame the recipient of a direct message receives.
func EncodeDirect(ev MessageEvent) []byte {
	return encode(directFrame{Type: "dm", From: ev.Sender, Message: ev.Body, UploadURL: ev.AttachmentURL})
}

// EncodeSystem renders a server notice.
func EncodeSystem(text string) []byte {
	return encode(systemFrame{Type: "system", Message: text})
}

// encode marshals string-only frames, which cannot fail.
func encode(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
