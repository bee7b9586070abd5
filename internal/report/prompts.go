package report

const narrativePrompt = `You are a warm, data-grounded concierge with a wink. Write a short narrative about this person's year.

Context (JSON):
{context_json}

Rules:
- 3-5 sentences.
- Ground every claim in provided data; do not invent specifics.
- Reference friends, venues, neighborhoods, cuisines, and activities sparingly but specifically.
- Keep tone warm, specific, never cringe. No emojis. No hashtags.

Return ONLY the narrative text, no JSON, no preamble.`

const insightsPrompt = `You are summarizing patterns from a year of calendar stats.

Context (JSON):
{context_json}

Return JSON: {"patterns": [{"title": "...", "detail": "..."}]}
- 3 items max.
- Each detail should be concise (under 140 chars), data-grounded.
- Prioritize streaks, shifts (early vs late year), and notable pairs (person + neighborhood/venue).`

const experimentsPrompt = `You are suggesting forward-looking experiments for next year based on this year's stats.

Context (JSON):
{context_json}

Return JSON: {"experiments": [{"title": "...", "description": "..."}]}
- 3 items max.
- Make suggestions specific to the data (people, cuisines, neighborhoods, activities).
- Keep descriptions short (under 140 chars). No emojis.`
