package migrate

// State is a step of a migration run.
type State int

// Migration states. A run moves forward through them and ends in
// AlreadyMigrated, Done, or Failed.
const (
	NotStarted State = iota
	CheckingFlag
	AlreadyMigrated
	Extracting
	Transforming
	Loading
	Done
	Failed
)

var stateNames = [...]string{
	NotStarted:      "not_started",
	CheckingFlag:    "checking_flag",
	AlreadyMigrated: "already_migrated",
	Extracting:      "extracting",
	Transforming:    "transforming",
	Loading:         "loading",
	Done:            "done",
	Failed:          "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether a run stops in s.
func (s State) Terminal() bool {
	return s == AlreadyMigrated || s == Done || s == Failed
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
