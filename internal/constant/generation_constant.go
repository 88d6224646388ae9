package constant

const (
	// Generation stages, in execution order.
	StageOutline    = "outline"
	StageFlashcards = "flashcards"
	StageQuiz       = "quiz"
	StageInsights   = "insights"
	StageAll        = "all"

	// Wire event names emitted over the generation stream.
	EventStatus       = "status"
	EventOutlineChunk = "outline_chunk"
	EventFlashcard    = "flashcard_item"
	EventQuiz         = "quiz_item"
	EventFinal        = "final"
	EventError        = "error"

	// Delimiters the model wraps each flashcard / quiz item in.
	FlashcardOpenTag  = "[FC]"
	FlashcardCloseTag = "[/FC]"
	QuizOpenTag       = "[QZ]"
	QuizCloseTag      = "[/QZ]"

	// Progress checkpoints announced at the start of each stage on a full run.
	ProgressOutline    = 10
	ProgressFlashcards = 40
	ProgressQuiz       = 70
	ProgressInsights   = 95

	// WeakSpotsPlaceholder marks a Generation row whose weak-spots analysis
	// has not run yet; the on-demand analysis flow replaces it.
	WeakSpotsPlaceholder = "PENDING_ANALYSIS"

	// DefaultNoteTitle is what the title-synthesis consumer looks for.
	DefaultNoteTitle = "Untitled note"
)
