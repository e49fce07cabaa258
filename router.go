// Package concierge routes chat turns for the vendor-discovery assistant:
// every inbound utterance is moderated, classified, and dispatched to
// exactly one of three streaming response paths.
package concierge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaadiscout/concierge/models"
	"github.com/shaadiscout/concierge/retrieval"
	"github.com/shaadiscout/concierge/stores"
)

// VendorTopK is the fixed nearest-neighbor count requested per vendor query.
const VendorTopK = 5

// Fixed user-facing strings for the vendor path.
const (
	VendorHeader = "Here are some vendors in Mumbai based on your request:\n\n"

	NoVendorsMessage = "I couldn't find any vendors matching that just yet. Try naming a service (caterer, photographer, venue) and a neighbourhood in Mumbai, and I'll look again."

	RetrievalFailureMessage = "Something went wrong while searching for vendors. Please try again in a moment."
)

// Turn paths, as recorded in the audit log.
const (
	PathDenied  = "denied"
	PathVendor  = "vendor"
	PathGeneral = "general"
)

// Keyword sets for intent classification. Matching is a case-insensitive
// substring test; plural forms match through their singular stems.
var (
	vendorKeywords   = []string{"vendor", "caterer", "venue", "wedding", "photographer", "makeup", "decorator", "dj", "banquet"}
	localityKeywords = []string{"mumbai", "bombay"}
)

// IsVendorQuery reports whether the utterance reads as a request for vendor
// or venue recommendations.
func IsVendorQuery(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, kw := range vendorKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, kw := range localityKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Moderator classifies a single utterance.
type Moderator interface {
	Classify(ctx context.Context, text string) (models.ModerationResult, error)
}

// VendorSearcher answers vendor queries against the vector index.
type VendorSearcher interface {
	Search(ctx context.Context, query string, topK int) (*retrieval.Result, error)
}

// ChatRouter dispatches one chat turn to the denial, vendor, or general
// path and emits a single ordered StreamEvent sequence. Messages and Turns
// are optional persistence hooks; a nil store skips that persistence.
type ChatRouter struct {
	Moderator Moderator
	Retriever VendorSearcher
	Generator Generator
	Messages  stores.MessageStore
	Turns     stores.TurnLog
	Logger    *log.Logger
}

// NewChatRouter wires the router's collaborators.
func NewChatRouter(moderator Moderator, retriever VendorSearcher, generator Generator, logger *log.Logger) *ChatRouter {
	if logger == nil {
		logger = log.Default()
	}
	return &ChatRouter{
		Moderator: moderator,
		Retriever: retriever,
		Generator: generator,
		Logger:    logger,
	}
}

// Respond handles one chat turn. The returned channel yields the complete
// event sequence for the turn — start first, finish last, always — and is
// closed after finish. Failures inside a path surface as fixed user-facing
// text or an error event, never as a missing terminator.
func (r *ChatRouter) Respond(ctx context.Context, sessionKey string, history []models.Message) <-chan models.StreamEvent {
	events := make(chan models.StreamEvent)

	go func() {
		defer close(events)
		started := time.Now()

		emit := func(ev models.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		emit(models.StartEvent())

		utterance := models.LatestUserText(history)
		r.saveUserMessage(sessionKey, utterance)

		path, failed := r.dispatch(ctx, sessionKey, utterance, history, emit)

		emit(models.FinishEvent())
		r.recordTurn(sessionKey, path, utterance, time.Since(started), failed)
	}()

	return events
}

// dispatch picks exactly one response path and runs it.
func (r *ChatRouter) dispatch(ctx context.Context, sessionKey, utterance string, history []models.Message, emit func(models.StreamEvent) bool) (path string, failed bool) {
	if utterance != "" {
		verdict, err := r.Moderator.Classify(ctx, utterance)
		if err != nil {
			// Fail-open: an unreachable classifier does not block the turn,
			// it only loses the gate for this one utterance.
			r.Logger.Printf("[ROUTER] moderation check failed, proceeding unflagged: %v", err)
		} else if verdict.Flagged {
			r.denialPath(sessionKey, denialText(verdict), emit)
			return PathDenied, false
		}
	}

	if IsVendorQuery(utterance) {
		return PathVendor, r.vendorPath(ctx, sessionKey, utterance, emit)
	}
	return PathGeneral, r.generalPath(ctx, sessionKey, history, emit)
}

func denialText(verdict models.ModerationResult) string {
	if verdict.DenialMessage != "" {
		return verdict.DenialMessage
	}
	return "I can't help with that request."
}

// denialPath emits the gate's denial message as a single delta on one text
// channel. Nothing else runs after a flagged verdict.
func (r *ChatRouter) denialPath(sessionKey, denial string, emit func(models.StreamEvent) bool) {
	id := uuid.New().String()
	emit(models.TextStartEvent(id))
	emit(models.TextDeltaEvent(id, denial))
	emit(models.TextEndEvent(id))
	r.saveAssistantMessage(sessionKey, denial)
}

// vendorPath searches the index and streams a ranked vendor summary. A
// retrieval failure degrades to a fixed message; the raw error stays
// server-side.
func (r *ChatRouter) vendorPath(ctx context.Context, sessionKey, utterance string, emit func(models.StreamEvent) bool) (failed bool) {
	result, err := r.Retriever.Search(ctx, utterance, VendorTopK)

	id := uuid.New().String()
	emit(models.TextStartEvent(id))

	var text string
	switch {
	case err != nil:
		r.Logger.Printf("[ROUTER] vendor retrieval failed: %v", err)
		text = RetrievalFailureMessage
		failed = true
	case len(result.Vendors) == 0:
		text = NoVendorsMessage
	default:
		text = VendorSummary(result.Vendors)
	}

	emit(models.TextDeltaEvent(id, text))
	emit(models.TextEndEvent(id))

	if err == nil && len(result.Vendors) > 0 {
		if raw, merr := json.Marshal(result.Vendors); merr == nil {
			emit(models.StructuredPayloadEvent(models.PayloadVendorHits, raw))
		} else {
			r.Logger.Printf("[ROUTER] failed to marshal vendor hits payload: %v", merr)
		}
	}

	r.saveAssistantMessage(sessionKey, text)
	return failed
}

// VendorSummary formats the ranked vendor list, capped at VendorTopK
// entries, preserving the retriever's ordering.
func VendorSummary(vendors []models.VendorRecord) string {
	if len(vendors) > VendorTopK {
		vendors = vendors[:VendorTopK]
	}

	var b strings.Builder
	b.WriteString(VendorHeader)
	for i, v := range vendors {
		b.WriteString(fmt.Sprintf("%d. %s – %s, %s", i+1, v.Name, v.Category, v.Location))
		if v.PriceRange != "" {
			b.WriteString(fmt.Sprintf(", approx %s", v.PriceRange))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// generalPath forwards the full history to the tool-capable model backend
// and relays its multiplexed stream. The stream always terminates: a
// backend failure becomes an error event, never a hang.
func (r *ChatRouter) generalPath(ctx context.Context, sessionKey string, history []models.Message, emit func(models.StreamEvent) bool) (failed bool) {
	deltaChan, errChan := r.Generator.StreamConversation(ctx, history)

	textID := uuid.New().String()
	reasoningID := uuid.New().String()
	emit(models.TextStartEvent(textID))

	var full strings.Builder
	for {
		select {
		case delta, ok := <-deltaChan:
			if !ok {
				deltaChan = nil
				break
			}
			if delta.Reasoning != "" {
				emit(models.ReasoningDeltaEvent(reasoningID, delta.Reasoning))
			}
			if delta.Text != "" {
				full.WriteString(delta.Text)
				emit(models.TextDeltaEvent(textID, delta.Text))
			}

		case err, ok := <-errChan:
			if ok && err != nil {
				r.Logger.Printf("[ROUTER] general path backend error: %v", err)
				emit(models.ErrorEvent("The assistant hit a problem answering that. Please try again."))
				emit(models.TextEndEvent(textID))
				return true
			}
			if !ok {
				errChan = nil
			}

		case <-ctx.Done():
			return true
		}

		if deltaChan == nil && errChan == nil {
			emit(models.TextEndEvent(textID))
			r.saveAssistantMessage(sessionKey, full.String())
			return false
		}
	}
}

func (r *ChatRouter) saveUserMessage(sessionKey, utterance string) {
	if r.Messages == nil || utterance == "" {
		return
	}
	parts := []models.Part{{Type: models.PartText, Text: utterance}}
	if err := r.Messages.SaveMessage(sessionKey, "user", "user_message", parts, ""); err != nil {
		r.Logger.Printf("[ROUTER] error saving user message: %v", err)
	}
}

func (r *ChatRouter) saveAssistantMessage(sessionKey, text string) {
	if r.Messages == nil || text == "" {
		return
	}
	parts := []models.Part{{Type: models.PartText, Text: text}}
	if err := r.Messages.SaveMessage(sessionKey, "model", "model_message", parts, ""); err != nil {
		r.Logger.Printf("[ROUTER] error saving model message: %v", err)
	}
}

func (r *ChatRouter) recordTurn(sessionKey, path, utterance string, took time.Duration, failed bool) {
	if r.Turns == nil {
		return
	}
	rec := &stores.TurnRecord{
		SessionKey: sessionKey,
		Path:       path,
		Utterance:  utterance,
		DurationMS: took.Milliseconds(),
		Failed:     failed,
	}
	if err := r.Turns.RecordTurn(rec); err != nil {
		r.Logger.Printf("[ROUTER] error recording turn: %v", err)
	}
}
