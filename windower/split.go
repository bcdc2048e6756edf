package windower

import "fmt"

// Split identifies the partition a training block belongs to.
type Split int

const (
	SplitTrain Split = iota
	SplitVal
	SplitTest
)

func (s Split) String() string {
	switch s {
	case SplitTrain:
		return "train"
	case SplitVal:
		return "val"
	case SplitTest:
		return "test"
	default:
		return "unknown"
	}
}

// roleCharOffset is the fixed position, counted from the end of the
// source wav filename, of the speaker-role marker in the corpus naming
// scheme (e.g. Ses05F_impro03_M012.wav). This is a property of the data
// source, configured here rather than derived from content.
const roleCharOffset = 8

// TestRoleMarker routes held-out recordings to the test split; any
// other role marker goes to validation.
const TestRoleMarker = 'M'

// Assign maps a recording to its split. Recordings from sessions in
// trainSessions go to train; recordings from heldOutSessions go to
// test or validation depending on the role character embedded in the
// wav filename. Sessions in neither set are an error.
func Assign(session int, wavName string, trainSessions, heldOutSessions []int) (Split, error) {
	if containsInt(trainSessions, session) {
		return SplitTrain, nil
	}
	if containsInt(heldOutSessions, session) {
		if len(wavName) < roleCharOffset {
			return 0, fmt.Errorf("wav name %q too short for role marker", wavName)
		}
		if wavName[len(wavName)-roleCharOffset] == TestRoleMarker {
			return SplitTest, nil
		}
		return SplitVal, nil
	}
	return 0, fmt.Errorf("session %d is in no configured split", session)
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
