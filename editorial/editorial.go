// Package editorial builds the prompt a language model uses to write an
// editorial vendor summary. It is pure string assembly: no network calls,
// deterministic for a given input, and it never invents a field — anything
// missing from the vendor record renders as an explicit placeholder.
package editorial

import (
	"fmt"
	"strings"

	"github.com/shaadiscout/concierge/models"
)

// MaxReviews is the default cap on reviews included in a prompt.
const MaxReviews = 50

const notProvided = "not provided"

// Format produces the editorial prompt for one vendor and its reviews.
// Reviews are truncated to the first maxReviews entries in the order given;
// maxReviews <= 0 falls back to MaxReviews.
func Format(vendor models.VendorRecord, reviews []models.Review, maxReviews int) string {
	if maxReviews <= 0 {
		maxReviews = MaxReviews
	}
	if len(reviews) > maxReviews {
		reviews = reviews[:maxReviews]
	}

	var b strings.Builder

	b.WriteString("You are writing an editorial summary for a wedding vendor listing in Mumbai.\n")
	b.WriteString("Use only the details below. Do not invent facts. If a field says \"" + notProvided + "\", leave it out of the summary.\n\n")

	b.WriteString("Vendor details:\n")
	b.WriteString(fmt.Sprintf("  Name: %s\n", orPlaceholder(vendor.Name)))
	b.WriteString(fmt.Sprintf("  Category: %s\n", orPlaceholder(vendor.Category)))
	b.WriteString(fmt.Sprintf("  Location: %s\n", orPlaceholder(vendor.Location)))
	b.WriteString(fmt.Sprintf("  Price range: %s\n", orPlaceholder(vendor.PriceRange)))
	b.WriteString(fmt.Sprintf("  Description: %s\n", orPlaceholder(vendor.Description)))

	b.WriteString(fmt.Sprintf("\nCustomer reviews (%d):\n", len(reviews)))
	if len(reviews) == 0 {
		b.WriteString("  No reviews available.\n")
	}
	for i, review := range reviews {
		b.WriteString(fmt.Sprintf("%d. Author: %s\n", i+1, orPlaceholder(review.Author)))
		b.WriteString(fmt.Sprintf("   Rating: %s\n", orPlaceholder(review.Rating)))
		b.WriteString(fmt.Sprintf("   Review: %s\n", orPlaceholder(review.Text)))
	}

	b.WriteString("\nWrite a warm, factual summary in two short paragraphs, followed by a one-line verdict.\n")
	return b.String()
}

func orPlaceholder(s string) string {
	if s == "" {
		return notProvided
	}
	return s
}
