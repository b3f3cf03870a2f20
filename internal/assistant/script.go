package assistant

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	RepromptMessage = "Please reply with 'yes' or 'no'."
	ClosingMessage  = "You're all set! Go ahead and fill the form above. 😊"
	EndedMessage    = "This conversation has ended. Please use the symptom form above."
)

var (
	ErrEmptyMessage   = errors.New("empty message")
	ErrInvalidScript  = errors.New("invalid script")
	ErrStepOutOfRange = errors.New("conversation step outside script")
)

// Step is one scripted question with the answer to each reply.
type Step struct {
	Prompt string `yaml:"prompt" json:"prompt" validate:"required"`
	Yes    string `yaml:"yes" json:"yes" validate:"required"`
	No     string `yaml:"no" json:"no" validate:"required"`
}

// Script is the fixed sequence of steps the assistant walks through.
type Script []Step

func DefaultScript() Script {
	return Script{
		{
			Prompt: "Hi there! 👋 I'm your Health Assistant. Do you have a fever?",
			Yes:    "Oh no! Do you also have a cough or sore throat?",
			No:     "Alright! Do you feel tired or have a headache?",
		},
		{
			Prompt: "Do you have fatigue or body pain?",
			Yes:    "I see. Any nausea or vomiting?",
			No:     "Okay, how about chills or shivering?",
		},
		{
			Prompt: "How long have you had these symptoms?",
			Yes:    "Got it! Please select your symptoms above.",
			No:     "Got it! Please select your symptoms above.",
		},
	}
}

type scriptInput struct {
	Steps []Step `validate:"min=1,dive"`
}

var scriptValidator = validator.New()

// Validate requires at least one step and no empty texts.
func (s Script) Validate() error {
	if err := scriptValidator.Struct(scriptInput{Steps: s}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	return nil
}

// Conversation is the cursor into the script. The zero value is the
// initial state.
type Conversation struct {
	Step int  `json:"step"`
	Done bool `json:"done"`
}

type Role string

const (
	RoleBot  Role = "bot"
	RoleUser Role = "user"
)

// Pause is how long the sequencer waits before an emission.
type Pause int

const (
	PauseNone Pause = iota
	PauseReply
	PausePrompt
	PauseClosing
)

// Timing maps pauses to durations.
type Timing struct {
	Reply   time.Duration
	Prompt  time.Duration
	Closing time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Reply:   800 * time.Millisecond,
		Prompt:  1200 * time.Millisecond,
		Closing: 1500 * time.Millisecond,
	}
}

func (t Timing) of(p Pause) time.Duration {
	switch p {
	case PauseReply:
		return t.Reply
	case PausePrompt:
		return t.Prompt
	case PauseClosing:
		return t.Closing
	default:
		return 0
	}
}

// Emission is a message the sequencer will append to the chat log.
type Emission struct {
	Role  Role
	Text  string
	Pause Pause
}

type Branch string

const (
	BranchYes       Branch = "yes"
	BranchNo        Branch = "no"
	BranchAmbiguous Branch = "ambiguous"
	BranchEnded     Branch = "ended"
)

// Outcome is the result of one user reply.
type Outcome struct {
	Branch    Branch
	Emissions []Emission
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Classify lowercases and trims text, then looks for "yes" before "no".
func Classify(text string) Branch {
	t := normalize(text)
	switch {
	case strings.Contains(t, "yes"):
		return BranchYes
	case strings.Contains(t, "no"):
		return BranchNo
	default:
		return BranchAmbiguous
	}
}

// Start returns what is emitted when the assistant is activated.
func (s Script) Start() []Emission {
	return []Emission{{Role: RoleBot, Text: s[0].Prompt}}
}

// Reply applies one user message to conv. The normalized text is echoed
// first.
func (s Script) Reply(conv Conversation, text string) (Conversation, Outcome, error) {
	text = normalize(text)
	if text == "" {
		return conv, Outcome{}, ErrEmptyMessage
	}
	if conv.Step < 0 || conv.Step >= len(s) {
		return conv, Outcome{}, fmt.Errorf("%w: %d of %d", ErrStepOutOfRange, conv.Step, len(s))
	}

	out := Outcome{Emissions: []Emission{{Role: RoleUser, Text: text}}}
	if conv.Done {
		out.Branch = BranchEnded
		out.Emissions = append(out.Emissions, Emission{Role: RoleBot, Text: EndedMessage, Pause: PauseReply})
		return conv, out, nil
	}

	step := s[conv.Step]
	out.Branch = Classify(text)
	switch out.Branch {
	case BranchYes:
		out.Emissions = append(out.Emissions, Emission{Role: RoleBot, Text: step.Yes, Pause: PauseReply})
	case BranchNo:
		out.Emissions = append(out.Emissions, Emission{Role: RoleBot, Text: step.No, Pause: PauseReply})
	default:
		out.Emissions = append(out.Emissions, Emission{Role: RoleBot, Text: RepromptMessage, Pause: PauseReply})
		return conv, out, nil
	}

	if conv.Step < len(s)-1 {
		conv.Step++
		out.Emissions = append(out.Emissions, Emission{Role: RoleBot, Text: s[conv.Step].Prompt, Pause: PausePrompt})
	} else {
		conv.Done = true
		out.Emissions = append(out.Emissions, Emission{Role: RoleBot, Text: ClosingMessage, Pause: PauseClosing})
	}
	return conv, out, nil
}
