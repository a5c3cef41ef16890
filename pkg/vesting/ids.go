package vesting

import "fmt"

// Trigger kinds used in condition ids.
const (
	Single = "Single"
	Double = "Double"
)

// StartID is the id of a schedule's vesting start condition.
func StartID(scheduleID string) string {
	return scheduleID + " | Start"
}

func CliffID(scheduleID string) string {
	return scheduleID + " | Cliff Vest"
}

func MonthlyID(scheduleID string) string {
	return scheduleID + " | Monthly Vesting"
}

// CiCEventID is the id of a change in control condition for the given trigger kind.
func CiCEventID(scheduleID, trigger string) string {
	return fmt.Sprintf("%s | %s Trigger CiC Event", scheduleID, trigger)
}

func TerminationEventID(scheduleID, trigger string) string {
	return fmt.Sprintf("%s | %s Trigger Termination Event", scheduleID, trigger)
}

// AccelExpirationID is the id of the condition that ends post-CiC acceleration.
func AccelExpirationID(scheduleID, modifier string) string {
	if modifier == "" {
		return scheduleID + " | Post-CiC Accel Exp"
	}
	return scheduleID + " | Post-CiC Accel Exp " + modifier
}

// ScheduleID joins the driving choices into a vesting terms id.
func ScheduleID(schedule, single, double string) string {
	return schedule + "/" + single + "/" + double
}
