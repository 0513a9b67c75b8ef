package scheduler

import "time"

// ScheduleInfo describes one registered schedule for status surfaces.
type ScheduleInfo struct {
	Job      string    `json:"job"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next,omitzero"`
	Prev     time.Time `json:"prev,omitzero"`
}

// Snapshot is a point-in-time view for the admin surface. Next/Prev are
// zero while the scheduler is stopped.
type Snapshot struct {
	Enabled   bool           `json:"enabled"`
	Timezone  string         `json:"timezone"`
	Running   bool           `json:"running"`
	Schedules []ScheduleInfo `json:"schedules"`
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Timezone: s.cfg.Timezone,
		Running:  s.c != nil,
	}
	for i := range s.entries {
		e := &s.entries[i]
		info := ScheduleInfo{Job: e.name, Schedule: e.raw}
		if s.c != nil {
			ce := s.c.Entry(e.entryID)
			info.Next = ce.Next
			info.Prev = ce.Prev
		}
		snap.Schedules = append(snap.Schedules, info)
	}
	return snap
}
