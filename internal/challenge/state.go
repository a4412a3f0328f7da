package challenge

// State is a position in the interstitial state machine.
type State int

const (
	Idle State = iota
	AwaitingChallenge
	ResolvingPopup
	ResolvingCaptcha
	Resolved
	Failed
)

var stateNames = [...]string{
	Idle:              "idle",
	AwaitingChallenge: "awaiting_challenge",
	ResolvingPopup:    "resolving_popup",
	ResolvingCaptcha:  "resolving_captcha",
	Resolved:          "resolved",
	Failed:            "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Resolved || s == Failed
}

// Outcome is what the detector race found after a navigation.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomePopup
	OutcomeCaptcha
)

func (o Outcome) String() string {
	switch o {
	case OutcomePopup:
		return "popup"
	case OutcomeCaptcha:
		return "captcha"
	default:
		return "none"
	}
}

// MarshalText renders the outcome by name in JSON and logs.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// allowed lists the legal transitions out of each state.
var allowed = map[State][]State{
	Idle:              {AwaitingChallenge},
	AwaitingChallenge: {ResolvingPopup, ResolvingCaptcha, Resolved, Failed},
	ResolvingPopup:    {Resolved, Failed},
	ResolvingCaptcha:  {Resolved, Failed},
}

func canTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
