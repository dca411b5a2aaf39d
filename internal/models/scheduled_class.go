package models

import (
	"time"

	"github.com/lib/pq"
)

// ClassStatus is the lifecycle state of a scheduled class.
type ClassStatus string

// Class lifecycle states. The only transition is Agendada → Concluída.
const (
	ClassStatusScheduled ClassStatus = "Agendada"
	ClassStatusConcluded ClassStatus = "Concluída"
)

// LocationType tells whether a class happens on site or remotely.
type LocationType string

const (
	LocationOnSite LocationType = "Presencial"
	LocationOnline LocationType = "Online"
)

// DateLayout is the calendar date format used on the wire.
const DateLayout = "2006-01-02"

// ScheduledClass is one occurrence of a course taught to a roster.
type ScheduledClass struct {
	ID            string         `db:"id" json:"id"`
	CourseID      string         `db:"course_id" json:"course_id"`
	InstructorID  string         `db:"instructor_id" json:"instructor_id"`
	StudentIDs    pq.StringArray `db:"student_ids" json:"student_ids"`
	ScheduledDate time.Time      `db:"scheduled_date" json:"scheduled_date"`
	StartTime     string         `db:"start_time" json:"start_time"`
	EndTime       string         `db:"end_time" json:"end_time"`
	LocationType  LocationType   `db:"location_type" json:"location_type"`
	Location      string         `db:"location" json:"location"`
	Status        ClassStatus    `db:"status" json:"status"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// HasStudent reports whether id belongs to the roster.
func (c *ScheduledClass) HasStudent(id string) bool {
	for _, sid := range c.StudentIDs {
		if sid == id {
			return true
		}
	}
	return false
}

// Concluded reports whether the class already went through conclusion.
func (c *ScheduledClass) Concluded() bool {
	return c.Status == ClassStatusConcluded
}

// ClassWindow is the date and time-of-day window a class actually happened in.
type ClassWindow struct {
	Date      time.Time
	StartTime string
	EndTime   string
}

// ScheduledClassUpdate lists the mutable fields of a scheduled class; nil means unchanged.
type ScheduledClassUpdate struct {
	CourseID      *string
	InstructorID  *string
	StudentIDs    []string
	ScheduledDate *time.Time
	StartTime     *string
	EndTime       *string
	LocationType  *LocationType
	Location      *string
}

// Empty reports whether the update changes nothing.
func (u ScheduledClassUpdate) Empty() bool {
	return u.CourseID == nil && u.InstructorID == nil && u.StudentIDs == nil && u.ScheduledDate == nil &&
		u.StartTime == nil && u.EndTime == nil && u.LocationType == nil && u.Location == nil
}
