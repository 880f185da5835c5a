package model

// HallManager is one assignment row of hall_managers.  Department and
// tasks are informational and do not narrow what a manager may do.
type HallManager struct {
	ManagerID  string   `json:"manager_id"`
	Department string   `json:"department,omitempty"`
	Tasks      []string `json:"tasks,omitempty"`
}

// Hall is the read-only view of a venue and its staff.  It is owned by the
// venue catalog and is always read live, never cached.
type Hall struct {
	ID       string        `json:"id"`
	OwnerID  string        `json:"owner_id"`
	Name     string        `json:"name"`
	Managers []HallManager `json:"managers,omitempty"`
}

// HasManager reports whether userID is currently assigned to the hall.
func (h *Hall) HasManager(userID string) bool {
	if h == nil || userID == "" {
		return false
	}
	for _, m := range h.Managers {
		if m.ManagerID == userID {
			return true
		}
	}
	return false
}
