package push

import (
	"encoding/json"
	"fmt"

	"github.com/inrcare/backend/internal/store"
)

// Action is one button on a displayed notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Data carries the click target the service worker opens.
type Data struct {
	URL string `json:"url"`
}

// Notification is the descriptor handed to the browser's showNotification.
type Notification struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Icon    string   `json:"icon,omitempty"`
	Badge   string   `json:"badge,omitempty"`
	Tag     string   `json:"tag,omitempty"`
	Actions []Action `json:"actions,omitempty"`
	Data    Data     `json:"data"`
}

// Payload is the wire envelope delivered to the client's push handler:
// {"notification": {...}}.
type Payload struct {
	Notification Notification `json:"notification"`
}

// Encode marshals the payload for transmission.
func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// ForReminder builds the notification for a due medication reminder. The tag
// collapses the repeat fires within one lead-time window into a single
// visible notification, and the "taken" action drives the mark-taken flow.
func ForReminder(rem *store.Reminder, med *store.Medication) Payload {
	return Payload{
		Notification: Notification{
			Title: fmt.Sprintf("Medication reminder: %s", med.Name),
			Body:  fmt.Sprintf("Time to take %s (%s) at %s", med.Name, med.Dosage, rem.Time),
			Icon:  "/icons/icon-192.png",
			Badge: "/icons/badge-72.png",
			Tag:   fmt.Sprintf("reminder-%d", rem.ID),
			Actions: []Action{
				{Action: "taken", Title: "Mark as taken"},
			},
			Data: Data{URL: fmt.Sprintf("/api/reminders/taken?id=%d", rem.ID)},
		},
	}
}

// ForTest builds the payload for the send-test endpoint.
func ForTest() Payload {
	return Payload{
		Notification: Notification{
			Title: "Test notification",
			Body:  "Push notifications are working.",
			Icon:  "/icons/icon-192.png",
			Tag:   "test",
			Data:  Data{URL: "/"},
		},
	}
}
