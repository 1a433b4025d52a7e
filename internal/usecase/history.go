package usecase

import "prepmate/internal/domain"

// HistoryWindow is the maximum number of messages resubmitted to the model.
const HistoryWindow = 20

// TrimTranscript bounds a transcript to the most recent HistoryWindow
// messages while keeping it structurally valid for resubmission:
//
//   - the window never opens with a model response, and
//   - the window never opens with a request carrying tool results whose
//     originating tool calls were cut off with the preceding response.
//
// Dropping a tool-return request can expose another orphaned boundary, so
// the scan repeats until the window opens with a plain user request or is
// empty. Transcripts at or under the limit are returned unchanged. Never
// fails; the worst case is an empty transcript.
func TrimTranscript(msgs []domain.Message) []domain.Message {
	if len(msgs) <= HistoryWindow {
		return msgs
	}

	trimmed := msgs[len(msgs)-HistoryWindow:]
	for len(trimmed) > 0 {
		first := trimmed[0]
		if first.IsResponse() || first.HasToolReturns() {
			trimmed = trimmed[1:]
			continue
		}
		break
	}
	return trimmed
}
