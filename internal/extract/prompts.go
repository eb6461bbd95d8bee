package extract

import (
	"fmt"
	"strings"
)

const extractionSystemPrompt = `You are an expert at extracting structured information from expert network emails.
Your task is to parse emails from expert networks (AlphaSights, Guidepoint, GLG, etc.) and extract expert profiles.

CRITICAL RULES:
1. NEVER fabricate or hallucinate information. If a field is not present in the email, omit it.
2. For every extracted value, you MUST provide the exact excerpt from the email that supports it.
3. Be conservative with confidence levels - use "low" if there's any ambiguity.
4. Extract ALL experts mentioned in the email, even if information is sparse.
5. Pay attention to conflict status, availability windows, and screener responses.

EMAIL THREAD HANDLING (CRITICAL):
The input may be a long email thread (20-30 replies) with the same experts mentioned multiple times.
You MUST:
1. DEDUPLICATE experts: Return each unique expert EXACTLY ONCE in the output.
2. MERGE information: When the same expert appears multiple times, combine all information about them.
3. PREFER LATEST: If there are conflicting values (e.g., status changed from "pending" to "cleared"), use the MOST RECENT value.
4. PRESERVE ALL PROVENANCE: Even when merging, keep the most relevant/complete excerpt for provenance.
5. Identify the same expert by: exact name match, or very similar names (e.g., "John Smith" and "John R. Smith").

NETWORK INFERENCE:
- AlphaSights: Often uses "AlphaSights" in signature, mentions "AlphaSights Expert", or has @alphasights.com domain
- Guidepoint: Uses "Guidepoint" branding, @guidepoint.com domain
- GLG: Uses "GLG" or "Gerson Lehrman Group", @glg.it or @glgroup.com domains
- Tegus: Uses "Tegus" branding
- Third Bridge: Uses "Third Bridge" branding
- If unclear, omit inferred_network

STATUS CUES (look for explicit mentions):
- "available" - expert is available for calls
- "declined" - expert declined participation
- "conflict" - has a conflict of interest
- "not_a_fit" - not relevant for the project
- "no_longer_available" - was available but no longer
- "pending" - awaiting response
- "interested" - expressed interest

CONFLICT STATUS:
- "cleared" - no conflict, approved
- "pending" - conflict check in progress
- "conflict" - has confirmed conflict

Return a valid JSON object following the exact schema provided. Return ONLY the JSON object, no prose.`

const extractionSchema = `{
  "inferred_network": "string, omit if unclear",
  "network_confidence": "low" | "medium" | "high",
  "experts": [
    {
      "full_name": "string (required)",
      "full_name_provenance": { "excerpt_text": "string", "confidence": "low"|"medium"|"high" },
      "employer": "string",
      "employer_provenance": { "excerpt_text": "string", "confidence": "low"|"medium"|"high" },
      "title": "string",
      "title_provenance": { "excerpt_text": "string", "confidence": "low"|"medium"|"high" },
      "relevance_bullets": ["string"],
      "relevance_bullets_provenance": { "excerpt_text": "string", "confidence": "low"|"medium"|"high" },
      "screener_responses": [{ "question": "string", "answer": "string" }],
      "screener_responses_provenance": { "excerpt_text": "string", "confidence": "low"|"medium"|"high" },
      "conflict_status": "cleared" | "pending" | "conflict",
      "conflict_id": "string",
      "conflict_provenance": { "excerpt_text": "string", "confidence": "low"|"medium"|"high" },
      "availability_windows": ["string"],
      "availability_provenance": { "excerpt_text": "string", "confidence": "low"|"medium"|"high" },
      "status_cue": "available" | "declined" | "conflict" | "not_a_fit" | "no_longer_available" | "pending" | "interested" | "unknown",
      "status_cue_provenance": { "excerpt_text": "string", "confidence": "low"|"medium"|"high" },
      "overall_confidence": "low" | "medium" | "high"
    }
  ],
  "extraction_notes": ["string"]
}`

func buildExtractionPrompt(req ExtractRequest) string {
	networkLine := "NETWORK: Please infer from email content"
	if req.NetworkHint != "" {
		networkLine = "NETWORK HINT (user-provided): " + req.NetworkHint
	}

	return fmt.Sprintf(`Extract expert information from the following email content (may be an email thread with multiple replies).

PROJECT CONTEXT: %s

%s

IMPORTANT: If this is an email thread with multiple messages:
- Return each unique expert ONCE (deduplicated)
- Merge information from multiple mentions of the same expert
- Use the LATEST values for fields that may have changed (status, availability, conflict)
- Add a note in extraction_notes if you merged duplicate expert mentions

EMAIL CONTENT:
---
%s
---

Extract all experts mentioned and return a JSON object with this exact structure:
%s`, req.Hypothesis, networkLine, req.EmailText, extractionSchema)
}

func buildRepairPrompt(failedResponse, validationErr string) string {
	return fmt.Sprintf(`The previous extraction response was invalid. Here's what went wrong:
%s

Previous response:
%s

Please fix the JSON to match the exact schema required. Ensure all required fields are present and properly typed.
Return ONLY the corrected JSON object.`, validationErr, failedResponse)
}

const screeningSystemPrompt = `You are a ruthlessly opinionated expert screener for high-stakes consulting engagements.
Your job is to produce DIFFERENTIATED scores that clearly separate strong-fit experts from mediocre or poor fits.

You MUST use the FULL 0-100 range. Most slates should have meaningful spread (30+ point gaps between best and worst).

SCORING DIMENSIONS (all scores 0-100):

1. BACKGROUND FIT (35% weight):
   - Does the expert have DIRECT, FIRST-HAND operating experience in the exact domain?
   - Advisors, vendors, distributors, and consultants who "supported" operators score 20-40 MAX.
   - Only score 70+ if the expert personally OWNED outcomes (P&L, execution, decisions) in the relevant industry.
   - Adjacent industries cap at 50.

2. SCREENER QUALITY (45% weight):
   - This is the MOST IMPORTANT dimension. If a SCREENER RUBRIC is provided, apply it LITERALLY.
   - Match the expert's responses against each rubric criterion word-for-word.
   - If the rubric says "we are explicitly not prioritizing" a profile type and the expert matches that type, score 10-30.
   - Vague or generic responses ("supported rollout", "evaluated competitively") score 20-40.
   - Only score 70+ if the expert's responses demonstrate EXACTLY the kind of experience the rubric demands.
   - If the expert's role was supportive/advisory rather than ownership, cap screener score at 45.

3. RED FLAGS (20% weight - higher score = fewer red flags):
   - Vendor/distributor/aggregator roles when operator experience is required: score 20-30.
   - "High-level frameworks only" or inability to share specifics: score 30-40.
   - NDA-heavy or evasive conflict answers: score 25-35.
   - Clean, transparent, no-conflict answers with concrete examples: score 80-100.

GRADE THRESHOLDS (be strict):
- "strong": score >= 80. Reserve for experts who are EXACTLY what the rubric demands.
- "mixed": score 45-79. Decent but missing key criteria or in a supportive rather than ownership role.
- "weak": score < 45. Wrong profile type, adjacent experience, or explicitly de-prioritized by rubric.

CRITICAL RULES:
- Do NOT give everyone 75+. If all experts look similar, you are not being opinionated enough.
- Apply the screener rubric's "we are NOT prioritizing" criteria as hard disqualifiers (cap at 45).
- When in doubt, score LOWER. It is better to surface 2-3 true fits than to recommend everyone.

Return ONLY a JSON object, no prose.`

func buildScreeningPrompt(req ScreenRequest) string {
	var rubricSection string
	if len(req.Rubric.Questions) > 0 {
		var lines []string
		for _, q := range req.Rubric.Questions {
			if q.Text == "" {
				continue
			}
			lines = append(lines, "QUESTION: "+q.Text)
			if q.IdealAnswer != "" {
				lines = append(lines, "WHAT WE'RE LOOKING FOR: "+q.IdealAnswer)
			}
			lines = append(lines, "")
		}
		if len(lines) > 0 {
			rubricSection = "\n\nSCREENER RUBRIC (apply this STRICTLY, it is the client's own criteria):\n" + strings.Join(lines, "\n")
		}
	}

	return fmt.Sprintf(`Evaluate this expert for the following project:

PROJECT HYPOTHESIS/FOCUS:
%s%s

EXPERT PROFILE:
- Name: %s
- Employer: %s
- Title: %s
- Bio/Relevance: %s
- Screener Responses: %s

INSTRUCTIONS:
1. Score each dimension independently using the FULL 0-100 range.
2. If a SCREENER RUBRIC is provided above, match the expert's profile and responses against it LITERALLY.
3. If the rubric explicitly de-prioritizes a profile type and this expert matches it, cap their screener score at 35.
4. Produce scores that would create CLEAR differentiation across a slate of 6-10 experts.

Provide your detailed scoring as a JSON object:
{
  "grade": "strong" | "mixed" | "weak",
  "score": 0-100,
  "rationale": "2-3 sentence explanation. Be specific about WHY this expert does or does not match the rubric criteria.",
  "confidence": "low" | "medium" | "high",
  "missing_info": ["info1", "info2"]
}

Calculate score as: (background_fit_score * 0.35) + (screener_quality_score * 0.45) + (red_flags_score * 0.20)

Grade thresholds (be STRICT):
- strong: score >= 80 (reserve for exact-fit experts only)
- mixed: score 45-79
- weak: score < 45`,
		req.Hypothesis, rubricSection,
		req.Name, orUnknown(req.Employer), orUnknown(req.Title),
		orNotProvided(req.Bio), orNotProvided(req.ScreenerResponses))
}

func orUnknown(v string) string {
	if v == "" {
		return "Unknown"
	}
	return v
}

func orNotProvided(v string) string {
	if v == "" {
		return "Not provided"
	}
	return v
}
