package constant

const (
	GenerationSystemPrompt = `You are a study assistant that turns raw lecture notes into structured study artifacts.
Follow the output format for each task EXACTLY. Never add commentary, preambles, or markdown fences around the output.`

	// OutlinePrompt streams free-form markdown; the whole response is the artifact.
	OutlinePrompt = `Create a hierarchical outline of the following notes.

Rules:
- Use markdown headings and nested bullet points.
- Cover every major concept in the notes, in the order they appear.
- Keep each bullet short (one line).
- Output ONLY the outline.
%s
Notes:
"""
%s
"""

Respond in %s.`

	// FlashcardsPrompt wraps each card so the stream can be cut into items
	// before the response is complete.
	FlashcardsPrompt = `Create flashcards from the following notes.

Rules:
- Emit each flashcard as a single JSON object wrapped in [FC] and [/FC] markers.
- JSON shape: {"id":"<uuid>","front":"...","back":"...","tags":["..."],"difficulty":1}
- difficulty is 1 (easy), 2 (medium) or 3 (hard).
- One concept per card. Front is a question, back is the answer.
- Output ONLY the marked items, nothing between or around them.

Example:
[FC]{"id":"3f1c...","front":"What is osmosis?","back":"Diffusion of water across a semipermeable membrane.","tags":["biology"],"difficulty":1}[/FC]
%s
Notes:
"""
%s
"""

Respond in %s.`

	QuizPrompt = `Create a multiple-choice quiz from the following notes.

Rules:
- Emit each question as a single JSON object wrapped in [QZ] and [/QZ] markers.
- JSON shape: {"id":"<uuid>","question":"...","choices":["...","...","...","..."],"correctIndex":0,"explanation":"..."}
- Exactly 4 choices per question, one correct.
- Output ONLY the marked items, nothing between or around them.
%s
Notes:
"""
%s
"""

Respond in %s.`

	// InsightsPrompt is answered in one shot, not streamed item by item.
	InsightsPrompt = `Analyze the following notes and produce three insights.

Output a single JSON object, no markdown fences:
{"devils_advocate":"a strong counterargument to the main claim of the notes","metaphor":"a metaphor that explains the core concept","cross_pollination":"a connection between this material and an unrelated field"}
%s
Notes:
"""
%s
"""

Respond in %s.`

	// RefinementInstructionBlock is spliced into a stage prompt when the
	// caller asked for a targeted re-run with extra instructions.
	RefinementInstructionBlock = `
Additional instructions from the student (these take priority over the rules above where they conflict):
%s
`

	TitleSynthesisPrompt = `Write a short title (at most 8 words) for a note containing the following text.
Output ONLY the title, no quotes, no punctuation at the end.

Text:
"""
%s
"""`

	WeakSpotsPrompt = `A student answered quiz questions about their notes. Identify their weak spots.

Quiz questions (JSON):
%s

Questions the student answered incorrectly (by id):
%s

Output a single JSON array of strings, each naming one concept the student should revisit, most important first. Output ONLY the JSON array.`
)
