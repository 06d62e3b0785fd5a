package loopback

import "github.com/Seednode/partyline/games"

// cannedContent returns a small built-in content set per game type,
// standing in for the real content service.
func cannedContent(gameType string) (any, bool) {
	switch gameType {
	case "quiz":
		return games.QuizContent{
			Questions: []games.QuizQuestion{
				{
					Prompt:       "Which planet has the most moons?",
					Options:      []string{"Earth", "Mars", "Saturn", "Mercury"},
					CorrectIndex: 2,
				},
				{
					Prompt:       "What is the largest ocean?",
					Options:      []string{"Atlantic", "Pacific", "Indian", "Arctic"},
					CorrectIndex: 1,
				},
				{
					Prompt:       "How many legs does a spider have?",
					Options:      []string{"6", "8", "10", "12"},
					CorrectIndex: 1,
				},
			},
		}, true

	case "wordrace":
		return games.WordContent{
			Rounds: []games.WordRound{
				{
					Category:  "Fruit",
					Valid:     []string{"apple", "banana", "cherry", "date", "elderberry", "fig", "grape"},
					TimeLimit: 30,
				},
				{
					Category:  "Colors",
					Valid:     []string{"red", "orange", "yellow", "green", "blue", "indigo", "violet"},
					TimeLimit: 30,
				},
			},
		}, true

	case "mathdash":
		return games.MathContent{
			Problems: []games.MathProblem{
				{Prompt: "7 x 8", Answer: 56},
				{Prompt: "12 + 29", Answer: 41},
				{Prompt: "100 - 37", Answer: 63},
			},
		}, true
	}

	return nil, false
}
