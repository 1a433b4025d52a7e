package usecase

import (
	"encoding/json"
	"strings"

	"prepmate/internal/domain"
)

// Tool names with dedicated wire representations.
const (
	toolGeneratePrep = "generate_prep"
	toolListPreps    = "list_preps"
)

// Translate maps one internal run event to its wire representation. It is a
// pure, stateless, total function over the event union; ok is false for
// events that carry no externally meaningful signal. Wire events are emitted
// strictly in internal event order; the translator never reorders or
// buffers across calls.
func Translate(ev domain.StreamEvent) (domain.WireEvent, bool) {
	switch ev.Type {
	case domain.EventTextDelta:
		return domain.WireEvent{
			Kind: domain.WireToken,
			Data: domain.TokenPayload{Text: ev.Text},
		}, true

	case domain.EventToolCall:
		return domain.WireEvent{
			Kind: domain.WireToolCall,
			Data: domain.ToolCallPayload{
				Name: ev.ToolName,
				Args: string(ev.Args),
			},
		}, true

	case domain.EventToolResult:
		switch ev.ToolName {
		case toolGeneratePrep:
			if isStorageURL(ev.Content) {
				return domain.WireEvent{
					Kind: domain.WirePDFGenerated,
					Data: domain.PDFGeneratedPayload{URL: ev.Content},
				}, true
			}
		case toolListPreps:
			return domain.WireEvent{
				Kind: domain.WirePrepList,
				Data: domain.PrepListPayload{Preps: prepsValue(ev.Content)},
			}, true
		}
		return domain.WireEvent{}, false

	case domain.EventRunFailed:
		return domain.WireEvent{
			Kind: domain.WireError,
			Data: domain.ErrorPayload{Message: ev.Message},
		}, true
	}

	return domain.WireEvent{}, false
}

// isStorageURL reports whether a generate_prep result is a presigned object
// store URL rather than a guidance or failure message.
func isStorageURL(s string) bool {
	return strings.HasPrefix(s, "https://") && strings.Contains(s, ".s3.")
}

// prepsValue passes the list_preps result through unmodified: structured
// JSON stays structured on the wire, anything else rides as a plain string.
func prepsValue(content string) any {
	raw := json.RawMessage(content)
	if json.Valid(raw) {
		return raw
	}
	return content
}
