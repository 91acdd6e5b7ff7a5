package hint

import (
	"fmt"

	"github.com/ashureev/hint-tutor/internal/domain"
)

// DoneSentinel is the marker the model is told to emit once the problem is solved.
const DoneSentinel = "DONE"

const firstHintPolicy = `You are HintTutor, a step-by-step tutor.
The user wants to solve the problem themselves, and only wants one hint at a time.
RULES:
- Provide exactly ONE short, focused hint now.
- Do NOT give the full solution.
- Prefer a Socratic style (ask guiding questions).
- Keep the hint to 1-3 sentences.`

const nextHintPolicy = `You are HintTutor.
The user is trying to solve the problem step by step.
RULES:
- Analyze the user's latest attempt.
- If they are partially correct, acknowledge briefly and push them gently to the next step.
- If they are off track, nudge them back without revealing the full solution.
- Provide EXACTLY ONE short, clear hint (1-3 sentences).
- Do NOT dump the full solution.
- If the user has clearly solved the problem completely, respond with "` + DoneSentinel + `" plus a very short confirmation.`

const solutionPolicy = `You are HintTutor.
The user has now asked for the full solution to the problem.
Provide:
- a clear explanation of the reasoning
- if appropriate, clean and correct code
- keep it concise but complete
No need to hide any steps now.`

// emptyAttemptPlaceholder stands in for a missing or empty attempt.
// Whitespace is passed through as typed.
const emptyAttemptPlaceholder = "(no text)"

func systemMessage(policy string) domain.Message {
	return domain.Message{Role: domain.RoleSystem, Content: policy}
}

func firstHintRequest(question string) domain.Message {
	return domain.Message{
		Role:    domain.RoleUser,
		Content: fmt.Sprintf("Problem:\n%s\n\nThe user wants to start hint-by-hint mode. Give the first hint only.", question),
	}
}

func attemptMessage(attempt string) domain.Message {
	if attempt == "" {
		attempt = emptyAttemptPlaceholder
	}
	return domain.Message{
		Role:    domain.RoleUser,
		Content: fmt.Sprintf("User attempt / reasoning:\n%s\n\nRespond with the next hint.", attempt),
	}
}

// withInstruction prepends a fresh system instruction to the transcript.
// The instruction is never stored.
func withInstruction(policy string, transcript []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(transcript)+1)
	out = append(out, systemMessage(policy))
	return append(out, transcript...)
}
