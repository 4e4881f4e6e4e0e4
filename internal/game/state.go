package game

// MatchStatus is the lifecycle of a match
type MatchStatus string

const (
	StatusWaiting    MatchStatus = "WAITING"
	StatusInProgress MatchStatus = "IN_PROGRESS"
	StatusCompleted  MatchStatus = "COMPLETED"
	StatusCancelled  MatchStatus = "CANCELLED"
)
