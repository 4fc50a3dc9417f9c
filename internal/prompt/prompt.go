// Package prompt builds the instruction text sent to the model for digest
// generation. Templates live here so services stay free of prompt wording.
package prompt

import "fmt"

const digestTemplate = `Please analyze the following meeting transcript and provide a structured summary with exactly three sections:

1. OVERVIEW: A brief, one-paragraph overview of the meeting (2-3 sentences)
2. KEY DECISIONS: A bulleted list of the key decisions made during the meeting
3. ACTION ITEMS: A bulleted list of action items assigned, including who they were assigned to

Format your response as follows:
OVERVIEW:
[Your overview paragraph here]

KEY DECISIONS:
• [Decision 1]
• [Decision 2]
[etc.]

ACTION ITEMS:
• [Action item 1 - Assigned to: Person]
• [Action item 2 - Assigned to: Person]
[etc.]

Meeting transcript:
%s`

const digestJSONTemplate = `Analyze the following meeting transcript and return a single JSON object with exactly these fields:

{
  "overview": "a brief, one-paragraph overview of the meeting (2-3 sentences)",
  "key_decisions": ["each key decision made during the meeting"],
  "action_items": ["each action item assigned, including who it was assigned to"]
}

Return only the JSON object, with no surrounding text or markdown fences.

Meeting transcript:
%s`

// Digest returns the sectioned-text prompt used for the streaming call.
func Digest(transcript string) string {
	return fmt.Sprintf(digestTemplate, transcript)
}

// DigestJSON returns the JSON-constrained prompt used for the structured call.
func DigestJSON(transcript string) string {
	return fmt.Sprintf(digestJSONTemplate, transcript)
}
