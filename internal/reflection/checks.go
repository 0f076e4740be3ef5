package reflection

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	pricePattern   = regexp.MustCompile(`\$\d+(,\d+)*(\.\d+)?`)
	ordinalPattern = regexp.MustCompile(`^\d+[.)]`)
)

const (
	CheckMinLength       = "min_length"
	CheckFollowUpMarker  = "follow_up_marker"
	CheckForbiddenTerms  = "forbidden_terms"
	CheckMaxLength       = "max_length"
	CheckUngroundedPrice = "ungrounded_price"
	CheckBrandVoice      = "brand_voice"
	CheckMissingCTA      = "missing_cta"
	CheckClaims          = "claim_verification"
	CheckBulletUsage     = "formatting_bullets"
	CheckParagraphLength = "formatting_paragraphs"
)

// groundingView is the concatenated tool output text a draft is checked
// against, precomputed once per Evaluate call.
type groundingView struct {
	raw   string
	lower string
}

func newGroundingView(toolOutputs map[string]string) groundingView {
	var sb strings.Builder
	for _, text := range toolOutputs {
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	raw := sb.String()
	return groundingView{raw: raw, lower: strings.ToLower(raw)}
}

type checkFunc func(cfg Config, response string, grounding groundingView) []string

// check tags a rule with its identity and severity. The engine walks the
// list in order; adding a rule means appending here, not branching logic.
type check struct {
	id       string
	severity Severity
	fn       checkFunc
}

func deterministicChecks() []check {
	return []check{
		{CheckMinLength, SeverityBlocking, checkMinLength},
		{CheckFollowUpMarker, SeverityBlocking, checkFollowUpMarker},
		{CheckForbiddenTerms, SeverityBlocking, checkForbiddenTerms},
		{CheckMaxLength, SeverityBlocking, checkMaxLength},
		{CheckUngroundedPrice, SeverityBlocking, checkUngroundedPrices},
		{CheckBrandVoice, SeverityAdvisory, checkBrandVoice},
		{CheckMissingCTA, SeverityBlocking, checkCallToAction},
		{CheckBulletUsage, SeverityAdvisory, checkBulletUsage},
		{CheckParagraphLength, SeverityAdvisory, checkParagraphLength},
	}
}

func checkMinLength(cfg Config, response string, _ groundingView) []string {
	if len(strings.TrimSpace(response)) < cfg.MinLength {
		return []string{fmt.Sprintf("response is too short (minimum %d characters)", cfg.MinLength)}
	}
	return nil
}

func checkFollowUpMarker(cfg Config, response string, _ groundingView) []string {
	if !strings.Contains(strings.ToLower(response), strings.ToLower(cfg.FollowUpMarker)) {
		return []string{fmt.Sprintf("response must offer follow-up questions (include %q)", cfg.FollowUpMarker)}
	}
	return nil
}

func checkForbiddenTerms(cfg Config, response string, grounding groundingView) []string {
	lowerResponse := strings.ToLower(response)

	var messages []string
	for _, term := range cfg.ForbiddenServiceTerms {
		lowerTerm := strings.ToLower(term)
		if strings.Contains(lowerResponse, lowerTerm) && !strings.Contains(grounding.lower, lowerTerm) {
			messages = append(messages, fmt.Sprintf("mentions %q, which is not an offered service", term))
		}
	}
	return messages
}

func checkMaxLength(cfg Config, response string, _ groundingView) []string {
	if len(response) > cfg.MaxLength {
		return []string{fmt.Sprintf("response is too long (maximum %d characters)", cfg.MaxLength)}
	}
	return nil
}

func checkUngroundedPrices(_ Config, response string, grounding groundingView) []string {
	var messages []string
	seen := make(map[string]bool)

	for _, amount := range pricePattern.FindAllString(response, -1) {
		if seen[amount] {
			continue
		}
		seen[amount] = true

		if !strings.Contains(grounding.raw, amount) {
			messages = append(messages, fmt.Sprintf("price %s does not appear in any tool output", amount))
		}
	}
	return messages
}

func checkBrandVoice(cfg Config, response string, _ groundingView) []string {
	words := strings.FieldsFunc(strings.ToLower(response), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})

	present := make(map[string]bool, len(words))
	for _, w := range words {
		present[w] = true
	}

	var messages []string
	for _, forbidden := range cfg.BrandVocabulary {
		if present[strings.ToLower(forbidden)] {
			messages = append(messages, fmt.Sprintf("avoid the word %q", forbidden))
		}
	}
	return messages
}

func checkCallToAction(cfg Config, response string, _ groundingView) []string {
	lowerResponse := strings.ToLower(response)

	mentionsPricing := false
	for _, term := range cfg.PricingTerms {
		if strings.Contains(lowerResponse, term) {
			mentionsPricing = true
			break
		}
	}
	if !mentionsPricing {
		return nil
	}

	for _, term := range cfg.ContactTerms {
		if strings.Contains(lowerResponse, term) {
			return nil
		}
	}

	return []string{"discusses pricing without inviting the visitor to book a consultation"}
}

func checkBulletUsage(cfg Config, response string, _ groundingView) []string {
	if len(response) <= cfg.BulletThreshold {
		return nil
	}

	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*") || ordinalPattern.MatchString(trimmed) {
			return nil
		}
	}

	return []string{fmt.Sprintf("responses over %d characters read better with a bulleted list", cfg.BulletThreshold)}
}

func checkParagraphLength(cfg Config, response string, _ groundingView) []string {
	var messages []string
	for i, paragraph := range splitParagraphs(response) {
		if len(paragraph) > cfg.ParagraphLimit {
			messages = append(messages, fmt.Sprintf("paragraph %d exceeds %d characters", i+1, cfg.ParagraphLimit))
		}
	}
	return messages
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			paragraphs = append(paragraphs, block)
		}
	}
	return paragraphs
}
