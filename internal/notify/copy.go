package notify

import "github.com/tinywideclouds/go-reminder-service/pkg/dispatch"

type copyEntry struct {
	title       string
	body        string
	clickAction string
}

var catalogue = map[dispatch.NotificationType]copyEntry{
	dispatch.TypeMealReminder: {
		title:       "Time to log your meal",
		body:        "Don't forget to log what you ate to stay on track with your goals.",
		clickAction: "OPEN_MEAL_LOG",
	},
	dispatch.TypeWeeklyReport: {
		title:       "Your weekly report is ready",
		body:        "See how your nutrition went this week.",
		clickAction: "OPEN_WEEKLY_REPORT",
	},
}

// MessageFor returns the fixed content for t. ok is false for unsupported types.
func MessageFor(t dispatch.NotificationType) (dispatch.Message, bool) {
	c, ok := catalogue[t]
	if !ok {
		return dispatch.Message{}, false
	}
	return dispatch.Message{
		Type:        t,
		Title:       c.title,
		Body:        c.body,
		ClickAction: c.clickAction,
		Data: map[string]string{
			"type":         string(t),
			"click_action": c.clickAction,
		},
	}, true
}
