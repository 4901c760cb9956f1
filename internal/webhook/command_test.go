package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var taipei = time.FixedZone("Asia/Taipei", 8*60*60)

func testClassifier(now time.Time) *Classifier {
	c := NewClassifier("BotName", taipei)
	c.now = func() time.Time { return now }
	return c
}

func textEvent(text string, mentionees ...Mentionee) Event {
	return Event{
		Type:       EventTypeMessage,
		ReplyToken: "rt",
		Source:     Source{Type: SourceTypeGroup, GroupID: "Cgroup", UserID: "Uuser"},
		Message:    &Message{ID: "m1", Type: MessageTypeText, Text: text, Mentionees: mentionees},
	}
}

func TestClassifyReportCommand(t *testing.T) {
	c := testClassifier(time.Date(2026, time.October, 18, 9, 0, 0, 0, taipei))

	cls := c.Classify(textEvent("@BotName 3月發話"), "Ubot")
	require.Equal(t, ReportCommand{YearMonth: "2026-03", Month: time.March, Label: "3月"}, cls)
}

func TestClassifyUsesConfiguredZoneForYear(t *testing.T) {
	// 2026-12-31 17:00 UTC is already 2027 in Taipei
	c := testClassifier(time.Date(2026, time.December, 31, 17, 0, 0, 0, time.UTC))

	cls := c.Classify(textEvent("@BotName 1月發話"), "Ubot")
	require.Equal(t, "2027-01", cls.(ReportCommand).YearMonth)
}

func TestClassify(t *testing.T) {
	c := testClassifier(time.Date(2026, time.January, 15, 12, 0, 0, 0, taipei))

	cases := []struct {
		name     string
		event    Event
		expected Classification
	}{
		{"plain text", textEvent("hello everyone"), PlainMessage{}},
		{"directive without mention", textEvent("3月發話"), PlainMessage{}},
		{"mention without directive", textEvent("@BotName hi"), Mention{}},
		{"month out of range", textEvent("@BotName 13月發話"), Mention{}},
		{"month zero", textEvent("@BotName 0月發話"), Mention{}},
		{"longer name containing alias", textEvent("@BotNameFan 3月發話"), PlainMessage{}},
		{"email containing alias", textEvent("me@botname.com 3月發話"), PlainMessage{}},
		{"alias followed by punctuation", textEvent("嗨 @BotName，3月發話"), ReportCommand{YearMonth: "2026-03", Month: time.March, Label: "3月"}},
		{"alias case-insensitive", textEvent("@botname 12月發話"), ReportCommand{YearMonth: "2026-12", Month: time.December, Label: "12月"}},
		{"full-width digits", textEvent("@BotName ３月發話"), ReportCommand{YearMonth: "2026-03", Month: time.March, Label: "3月"}},
		{"simplified characters", textEvent("@BotName 5月份发话"), ReportCommand{YearMonth: "2026-05", Month: time.May, Label: "5月"}},
		{"self mentionee", textEvent("@小幫手 4月發話", Mentionee{Type: "user", UserID: "Uother", IsSelf: true}), ReportCommand{YearMonth: "2026-04", Month: time.April, Label: "4月"}},
		{"destination mentionee", textEvent("@小幫手 4月發話", Mentionee{Type: "user", UserID: "Ubot"}), ReportCommand{YearMonth: "2026-04", Month: time.April, Label: "4月"}},
		{"other user mentioned", textEvent("@Amy 4月發話", Mentionee{Type: "user", UserID: "Uamy"}), PlainMessage{}},
		{"current month", textEvent("@BotName 本月發話"), ReportCommand{YearMonth: "2026-01", Month: time.January, Label: "1月"}},
		{"previous month crosses year", textEvent("@BotName 上個月發話"), ReportCommand{YearMonth: "2025-12", Month: time.December, Label: "12月"}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, c.Classify(tc.event, "Ubot"))
		})
	}
}

func TestClassifyIgnored(t *testing.T) {
	c := testClassifier(time.Now())

	join := textEvent("x")
	join.Type = "join"

	direct := textEvent("x")
	direct.Source = Source{Type: SourceTypeUser, UserID: "Uuser"}

	room := textEvent("x")
	room.Source = Source{Type: SourceTypeRoom, RoomID: "Rroom", UserID: "Uuser"}

	sticker := textEvent("")
	sticker.Message.Type = "sticker"

	noMessage := textEvent("")
	noMessage.Message = nil

	anonymous := textEvent("x")
	anonymous.Source.UserID = ""

	for name, ev := range map[string]Event{
		"join": join, "direct": direct, "room": room, "sticker": sticker, "no message": noMessage, "anonymous": anonymous,
	} {
		_, ok := c.Classify(ev, "Ubot").(Ignored)
		require.True(t, ok, name)
	}
}
