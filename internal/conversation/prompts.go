package conversation

var logWorkPrompts = []string{
	"📝 What did you work on today?",
	"📝 Let's log your day. What were you busy with?",
	"📝 What did you spend your time on today?",
}

var logLearnPrompts = []string{
	"💡 What did you learn?",
	"💡 Nice. What is one thing you learned along the way?",
	"💡 Anything new you picked up?",
}

var logBlockerPrompts = []string{
	"🚧 Any blockers? (send \"none\" if not)",
	"🚧 Was anything slowing you down? (send \"none\" if not)",
}

var chatOpeners = []string{
	"🤔 What's on your mind? Tell me about something you learned recently.",
	"🤔 Let's reflect. What idea from this week is still stuck in your head?",
	"🤔 What was the most interesting thing you read or tried lately?",
}
