package fixture

import (
	"regexp"
	"strconv"
	"strings"
)

// ExtractResult is the outcome of classifying a concrete path into a pattern
// (spec §4.1).
type ExtractResult struct {
	Pattern    string
	PathParams []string
	Priority   int
}

var (
	uuidV4Re     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)
	digitsRe     = regexp.MustCompile(`^[0-9]+$`)
	mongoOIDRe   = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	shortTokenRe = regexp.MustCompile(`^[A-Za-z0-9]{6,12}$`)
	hexOnlyRe    = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	hasDigitRe   = regexp.MustCompile(`[0-9]`)
	base64ishRe  = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)
	isoDateRe    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timestampRe  = regexp.MustCompile(`^\d{10,13}$`)
)

// nounTable maps a singular/plural resource noun to its canonical
// parameter name. Both forms map to the same canonical noun.
var nounTable = map[string]string{
	"user": "userId", "users": "userId",
	"post": "postId", "posts": "postId",
	"comment": "commentId", "comments": "commentId",
	"order": "orderId", "orders": "orderId",
	"product": "productId", "products": "productId",
	"item": "itemId", "items": "itemId",
	"account": "accountId", "accounts": "accountId",
	"customer": "customerId", "customers": "customerId",
	"invoice": "invoiceId", "invoices": "invoiceId",
	"project": "projectId", "projects": "projectId",
	"task": "taskId", "tasks": "taskId",
	"ticket": "ticketId", "tickets": "ticketId",
	"organization": "organizationId", "organizations": "organizationId",
	"team": "teamId", "teams": "teamId",
	"group": "groupId", "groups": "groupId",
	"file": "fileId", "files": "fileId",
	"image": "imageId", "images": "imageId",
	"document": "documentId", "documents": "documentId",
	"message": "messageId", "messages": "messageId",
	"session": "sessionId", "sessions": "sessionId",
	"event": "eventId", "events": "eventId",
	"category": "categoryId", "categories": "categoryId",
	"review": "reviewId", "reviews": "reviewId",
	"widget": "widgetId", "widgets": "widgetId",
	"transaction": "transactionId", "transactions": "transactionId",
	"payment": "paymentId", "payments": "paymentId",
	"subscription": "subscriptionId", "subscriptions": "subscriptionId",
}

// isDynamicSegment classifies a single path segment per the rules in
// spec.md §4.1. The first matching rule wins; order here is the spec order.
func isDynamicSegment(seg string) bool {
	switch {
	case uuidV4Re.MatchString(seg):
		return true
	case digitsRe.MatchString(seg):
		return true
	case mongoOIDRe.MatchString(seg):
		return true
	case shortTokenRe.MatchString(seg) && (hasDigitRe.MatchString(seg) || hexOnlyRe.MatchString(seg)):
		// Plain words such as "widgets" or "download" stay static: a short
		// token counts only if it has a digit or is all hex.
		return true
	case base64ishRe.MatchString(seg):
		return true
	case isoDateRe.MatchString(seg):
		return true
	case timestampRe.MatchString(seg):
		return true
	default:
		return false
	}
}

// ExtractPattern converts an absolute path (query already stripped) into a
// `:param`-style pattern, per spec §4.1.
func ExtractPattern(path string) ExtractResult {
	trimmed := strings.Trim(path, "/")
	var segments []string
	if trimmed != "" {
		segments = strings.Split(trimmed, "/")
	}

	patternSegments := make([]string, len(segments))
	var params []string
	staticCount, dynamicCount, paramN := 0, 0, 0

	for i, seg := range segments {
		if !isDynamicSegment(seg) {
			patternSegments[i] = seg
			staticCount++
			continue
		}

		dynamicCount++
		name := paramName(segments, i, &paramN)
		params = append(params, name)
		patternSegments[i] = ":" + name
	}

	pattern := "/" + strings.Join(patternSegments, "/")

	priority := 10*len(segments) + 5*staticCount + 1*dynamicCount - 2*len(params)

	return ExtractResult{
		Pattern:    pattern,
		PathParams: params,
		Priority:   priority,
	}
}

// paramName derives the parameter name for segments[i], which is known to be
// dynamic. It consults the previous segment's noun first, then the
// segment's own value (unlikely for a dynamic segment, but some tokens like
// bare digits can also appear as noun-shaped strings downstream), then
// falls back to a positional paramN.
func paramName(segments []string, i int, paramN *int) string {
	if i > 0 {
		prev := strings.ToLower(segments[i-1])
		if canonical, ok := nounTable[prev]; ok {
			return canonical
		}
	}

	if canonical, ok := nounTable[strings.ToLower(segments[i])]; ok {
		return canonical
	}

	name := "param" + strconv.Itoa(*paramN)
	*paramN++
	return name
}
