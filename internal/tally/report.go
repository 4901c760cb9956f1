package tally

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

const (
	// MaxReportLength is the LINE text message limit in characters.
	MaxReportLength = 5000

	// NoDataMessage is returned for a month without any counted message.
	NoDataMessage = "這個月份還沒有任何發話紀錄喔！"

	resolveConcurrency = 8
)

var medals = [...]string{"🥇", "🥈", "🥉"}

// CountLister reads every row of a (group, year_month) bucket.
type CountLister interface {
	ListCounts(ctx context.Context, groupID, yearMonth string) ([]Count, error)
}

// NameResolver turns ids into display names. It never fails, a fallback name
// is returned instead.
type NameResolver interface {
	UserName(ctx context.Context, groupID, userID string) string
	GroupName(ctx context.Context, groupID string) string
}

// ReportBuilder renders ranked monthly reports.
type ReportBuilder struct {
	counts  CountLister
	names   NameResolver
	maxLen  int
	timeout time.Duration
}

// NewReportBuilder returns a ReportBuilder capped at MaxReportLength.
func NewReportBuilder(counts CountLister, names NameResolver, timeout time.Duration) *ReportBuilder {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &ReportBuilder{
		counts:  counts,
		names:   names,
		maxLen:  MaxReportLength,
		timeout: timeout,
	}
}

type rankedLine struct {
	userID string
	count  int64
	name   string
}

// Build returns the report of groupID for yearMonth. label is the
// human-readable month shown in the header, e.g. "3月".
func (b *ReportBuilder) Build(ctx context.Context, groupID, yearMonth, label string) (string, error) {
	listCtx, cancel := context.WithTimeout(ctx, b.timeout)
	counts, err := b.counts.ListCounts(listCtx, groupID, yearMonth)
	cancel()
	if err != nil {
		return "", fmt.Errorf("list counts %s/%s: %w", groupID, yearMonth, err)
	}

	if len(counts) == 0 {
		return NoDataMessage, nil
	}

	lines := make([]rankedLine, len(counts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, c := range counts {
		i, c := i, c
		g.Go(func() error {
			lines[i] = rankedLine{userID: c.UserID, count: c.Count, name: b.names.UserName(gctx, groupID, c.UserID)}
			return nil
		})
	}
	_ = g.Wait()

	rank(lines)

	var total int64
	for _, l := range lines {
		total += l.count
	}
	header := fmt.Sprintf("📊 %s %s發話排行榜 (%s)\n", b.names.GroupName(ctx, groupID), label, yearMonth)
	footer := fmt.Sprintf("──────────\n總計：%d 則，共 %d 人", total, len(lines))

	return render(header, lines, footer, b.maxLen), nil
}

// render drops ranked lines from the tail until header, lines and footer fit
// in max runes. Dropped lines are replaced by a single "…" line.
func render(header string, lines []rankedLine, footer string, max int) string {
	const more = "…\n"

	var body strings.Builder
	budget := max - utf8.RuneCountInString(header) - utf8.RuneCountInString(footer)
	for i, l := range lines {
		var line string
		if i < len(medals) {
			line = fmt.Sprintf("%s %s：%d 則\n", medals[i], l.name, l.count)
		} else {
			line = fmt.Sprintf("%d. %s：%d 則\n", i+1, l.name, l.count)
		}

		n := utf8.RuneCountInString(line)
		reserve := 0
		if i < len(lines)-1 {
			reserve = utf8.RuneCountInString(more)
		}
		if max > 0 && n+reserve > budget {
			body.WriteString(more)
			break
		}
		body.WriteString(line)
		budget -= n
	}

	return truncate(header+body.String()+footer, max)
}

// rank orders by count descending, ties by user id ascending.
func rank(lines []rankedLine) {
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].count != lines[j].count {
			return lines[i].count > lines[j].count
		}
		return lines[i].userID < lines[j].userID
	})
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	const ellipsis = "…"
	runes := []rune(s)
	return string(runes[:max-1]) + ellipsis
}
