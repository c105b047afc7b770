package coach

const (
	greetingText = "🔥 Hi! I'm your Coach V2.0. I'm here to turn you into your best version. Ready to own today?"

	// FallbackReply replaces the coach answer whenever the completion
	// service fails.
	FallbackReply = "💪 I'm temporarily offline, but you don't need me to act NOW! Focus on your next task."

	focusStartText = "🎯 Focus mode on! %d minutes of total concentration. Let's go!"
	focusDoneText  = "⏰ Time's up! Excellent focus. Ready for the next challenge?"

	failurePromptText = "Hey, failing is part of the process! You have %d pending tasks. Shall we recalibrate the route? What was the obstacle today?"

	recalibrationText = "Got it. %s is a real challenge. But remember: discipline isn't about never failing, it's about always coming back. Let's start small: pick ONE task to do right now. Which one will it be?"
)
