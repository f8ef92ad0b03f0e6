package llm

import (
	"fmt"
	"strings"

	"github.com/yoockh/madprep/internal/analysis"
)

var interviewerPrompt = fmt.Sprintf(`
You are an interviewer, and you are critically judging the interviewee's answer to the question provided. Give feedback on that answer.

Be very clear about where the strengths of the answer are, but be just as clear about where it can improve, and give advice on how to do so.

You will also be given a list of facial expressions made by the interviewee, each followed by the proportion of that expression during the answer. Add a section to your response about what the interviewee could change in their appearance while answering, given the context of the question and the emotional context of the response. IMPORTANT: low-proportion emotions (below %d%%) are likely errors in the facial recognition software, and it is unlikely that the interviewee is showing negative emotions intentionally. If no facial expressions were detected, say so and skip that section.

The input first states the question that was asked, followed by %q, then the interviewee's transcribed answer, followed by %q, then the list of emotions and proportions.
`, int(analysis.NoiseThreshold*100), analysis.Delimiter, analysis.Delimiter)

const answerHeader = "Answer:\n"

// InterviewerPrompt is the system instruction sent with every payload.
func InterviewerPrompt() string { return strings.TrimSpace(interviewerPrompt) }

// UserPrompt wraps a feedback payload.
func UserPrompt(payload string) string { return answerHeader + payload }

func payloadOf(prompt string) string { return strings.TrimPrefix(prompt, answerHeader) }
