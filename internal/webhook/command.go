package webhook

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/eucylin/Codex-Line-Bot/internal/tally"
)

var (
	// "3月發話", "12 月份发话"
	monthDirective = regexp.MustCompile(`(\d+)\s*月份?\s*[發发][話话]`)
	// "本月發話", "上個月發話"
	relativeDirective = regexp.MustCompile(`(本|這個|这个|上個|上个|上)\s*月份?\s*[發发][話话]`)
)

// Classification is the outcome of classifying one event. It is one of
// Ignored, PlainMessage, Mention or ReportCommand.
type Classification interface {
	isClassification()
}

// Ignored events are neither counted nor answered.
type Ignored struct {
	Reason string
}

// PlainMessage is ordinary group chat; it is counted.
type PlainMessage struct{}

// Mention addresses the bot without a known directive; it is counted.
type Mention struct{}

// ReportCommand asks for the ranking of one month; it is not counted.
type ReportCommand struct {
	YearMonth string
	Month     time.Month
	Label     string
}

func (Ignored) isClassification()       {}
func (PlainMessage) isClassification()  {}
func (Mention) isClassification()       {}
func (ReportCommand) isClassification() {}

// Classifier is the command parser. Months are resolved in loc.
type Classifier struct {
	alias   *regexp.Regexp
	loc     *time.Location
	now     func() time.Time
}

// NewClassifier returns a Classifier matching "@botName" mentions.
func NewClassifier(botName string, loc *time.Location) *Classifier {
	if loc == nil {
		loc = time.UTC
	}
	var alias *regexp.Regexp
	if name := strings.TrimPrefix(strings.TrimSpace(botName), "@"); name != "" {
		// The alias must stand alone: "me@bot.com" and "@BotNameFan" are not mentions.
		alias = regexp.MustCompile(`(?i)(?:^|[^A-Za-z0-9._%+\-])@` + regexp.QuoteMeta(name) + `(?:$|[\s\p{P}\p{S}])`)
	}
	return &Classifier{
		alias:   alias,
		loc:     loc,
		now:     time.Now,
	}
}

// Classify decides what ev is. destination is the bot's own user id.
func (c *Classifier) Classify(ev Event, destination string) Classification {
	if ev.Type != EventTypeMessage {
		return Ignored{Reason: "event type " + ev.Type}
	}
	if ev.Source.Type != SourceTypeGroup || ev.Source.GroupID == "" {
		return Ignored{Reason: "source type " + ev.Source.Type}
	}
	if ev.Source.UserID == "" {
		return Ignored{Reason: "anonymous sender"}
	}
	if ev.Message == nil || ev.Message.Type != MessageTypeText {
		return Ignored{Reason: "non-text message"}
	}

	if !c.addressed(ev.Message, destination) {
		return PlainMessage{}
	}

	if cmd, ok := c.ParseDirective(ev.Message.Text); ok {
		return cmd
	}
	return Mention{}
}

// ParseDirective looks for a month-report directive in text. The year is
// always the current year in the configured zone.
func (c *Classifier) ParseDirective(text string) (ReportCommand, bool) {
	text = normalizeDigits(text)
	now := c.now().In(c.loc)

	for _, m := range monthDirective.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > 12 {
			continue
		}
		return newReportCommand(now.Year(), time.Month(n)), true
	}

	if m := relativeDirective.FindStringSubmatch(text); m != nil {
		if m[1] == "本" || m[1] == "這個" || m[1] == "这个" {
			return newReportCommand(now.Year(), now.Month()), true
		}
		prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, c.loc).AddDate(0, -1, 0)
		return newReportCommand(prev.Year(), prev.Month()), true
	}

	return ReportCommand{}, false
}

func (c *Classifier) addressed(msg *Message, destination string) bool {
	for _, m := range msg.Mentionees {
		if m.IsSelf || (destination != "" && m.UserID == destination) {
			return true
		}
	}
	return c.alias != nil && c.alias.MatchString(msg.Text)
}

func newReportCommand(year int, month time.Month) ReportCommand {
	return ReportCommand{
		YearMonth: tally.YearMonth(year, month),
		Month:     month,
		Label:     fmt.Sprintf("%d月", int(month)),
	}
}

// normalizeDigits maps full-width digits to ASCII.
func normalizeDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '０' && r <= '９' {
			return '0' + (r - '０')
		}
		return r
	}, s)
}
