package redis

import "fmt"

const ns = "slotgo:v1"

func KeyVenueSchedule(venueID string) string {
	return fmt.Sprintf("%s:venue:%s:schedule", ns, venueID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdemLock(userID, idemKey string) string {
	return fmt.Sprintf("%s:idem:lock:%s:%s", ns, userID, idemKey)
}

func KeyIdemConfirm(sessionID, idemKey string) string {
	return fmt.Sprintf("%s:idem:confirm:%s:%s", ns, sessionID, idemKey)
}

func ChannelRoomEvents() string {
	return ns + ":rooms:events"
}
