package assessment

// Status is the assessment lifecycle state. It only ever moves forward.
type Status string

const (
	StatusCreated  Status = "CREATED"
	StatusPaid     Status = "PAID"
	StatusAnalyzed Status = "ANALYZED"
)

func (s Status) rank() int {
	switch s {
	case StatusCreated:
		return 1
	case StatusPaid:
		return 2
	case StatusAnalyzed:
		return 3
	default:
		return 0
	}
}

func (s Status) Valid() bool { return s.rank() > 0 }

// AtLeast reports whether s has reached other.
func (s Status) AtLeast(other Status) bool { return s.rank() >= other.rank() }

// Paid is true for PAID and ANALYZED.
func (s Status) Paid() bool { return s.AtLeast(StatusPaid) }

// Below lists the statuses that may legally advance to s.
func (s Status) Below() []Status {
	var out []Status
	for _, cand := range []Status{StatusCreated, StatusPaid, StatusAnalyzed} {
		if cand.rank() < s.rank() {
			out = append(out, cand)
		}
	}
	return out
}
