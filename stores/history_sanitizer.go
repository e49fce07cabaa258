package stores

import (
	"log"
)

// SanitizeHistory ensures a stored history has a turn structure the LLM API
// will accept before it is replayed into a generation request.
//
// Valid turn patterns:
//   - user_message -> model_message
//   - user_message -> function_call -> function_response -> model_message
//
// Truncated or corrupted histories can start mid tool cycle or contain a
// function_call with no matching function_response; both make the upstream
// API reject the request. The sanitizer drops whatever breaks the pattern,
// with one exception: trailing function_calls at the very end of history are
// kept, because their responses arrive in the current turn.
func SanitizeHistory(msgs []Message) []Message {
	if len(msgs) == 0 {
		return msgs
	}

	// Skip orphaned tool traffic until a clean starting message.
	start := 0
	for start < len(msgs) {
		t := msgs[start].Type
		if t != "function_call" && t != "function_response" {
			break
		}
		start++
	}
	if start == len(msgs) {
		log.Printf("[HISTORY] no valid starting message, dropping %d messages", len(msgs))
		return []Message{}
	}
	if start > 0 {
		log.Printf("[HISTORY] skipping %d orphaned messages at start (first was %s)", start, msgs[0].Type)
		msgs = msgs[start:]
	}

	out := make([]Message, 0, len(msgs))
	for i := 0; i < len(msgs); {
		switch msgs[i].Type {
		case "function_call":
			calls := i
			for calls < len(msgs) && msgs[calls].Type == "function_call" {
				calls++
			}
			responses := calls
			for responses < len(msgs) && msgs[responses].Type == "function_response" {
				responses++
			}
			if responses == calls && calls < len(msgs) {
				// Calls with no responses mid-history: drop the broken cycle.
				log.Printf("[HISTORY] removing incomplete tool cycle at index %d", i)
				i = calls
				continue
			}
			// Complete cycle, or trailing calls whose responses come in the
			// current request.
			out = append(out, msgs[i:responses]...)
			i = responses
		case "function_response":
			log.Printf("[HISTORY] removing orphaned function_response at index %d", i)
			i++
		default:
			out = append(out, msgs[i])
			i++
		}
	}
	return out
}

// DetectCorruptedHistory reports structural issues without repairing them.
// Returns an empty slice when the history is clean.
func DetectCorruptedHistory(msgs []Message) []string {
	var issues []string
	if len(msgs) == 0 {
		return issues
	}

	switch msgs[0].Type {
	case "function_response":
		issues = append(issues, "history starts with function_response (orphaned)")
	case "function_call":
		issues = append(issues, "history starts with function_call (truncated mid-cycle)")
	}

	pending := 0
	for _, msg := range msgs {
		switch msg.Type {
		case "function_call":
			pending++
		case "function_response":
			if pending > 0 {
				pending--
			} else {
				issues = append(issues, "function_response without preceding function_call")
			}
		}
	}
	if pending > 0 {
		issues = append(issues, "function_call(s) without responses at end of history")
	}

	for i := 1; i < len(msgs); i++ {
		if msgs[i-1].Type == "user_message" && msgs[i].Type == "user_message" {
			issues = append(issues, "two consecutive user_messages")
		}
	}
	return issues
}
