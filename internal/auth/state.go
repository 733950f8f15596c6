package auth

// State is the single consistent view of "who is the current actor".
// IsAuthenticated is always derived from Identity presence; it is never
// set independently.
type State struct {
	Identity        *Identity `json:"identity"`
	Session         *Session  `json:"session"`
	IsLoading       bool      `json:"is_loading"`
	IsAuthenticated bool      `json:"is_authenticated"`
	LastError       *Error    `json:"last_error"`
}
