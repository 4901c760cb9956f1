package tally

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

type listStub struct {
	counts []Count
	err    error
}

func (l listStub) ListCounts(_ context.Context, _, _ string) ([]Count, error) {
	return l.counts, l.err
}

type namesStub map[string]string

func (n namesStub) UserName(_ context.Context, _, userID string) string {
	if name, ok := n[userID]; ok {
		return name
	}
	return userID
}

func (n namesStub) GroupName(_ context.Context, groupID string) string {
	return "Test Group"
}

func TestReportRanking(t *testing.T) {
	b := NewReportBuilder(listStub{counts: []Count{
		{UserID: "C", Count: 2},
		{UserID: "B", Count: 5},
		{UserID: "A", Count: 5},
	}}, namesStub{"A": "Alice", "B": "Bob", "C": "Carol"}, 0)

	text, err := b.Build(context.Background(), "G", "2024-03", "3月")
	require.NoError(t, err)

	expected := "📊 Test Group 3月發話排行榜 (2024-03)\n" +
		"🥇 Alice：5 則\n" +
		"🥈 Bob：5 則\n" +
		"🥉 Carol：2 則\n" +
		"──────────\n" +
		"總計：12 則，共 3 人"
	require.Equal(t, expected, text)
}

func TestReportPlainRanksAfterMedals(t *testing.T) {
	b := NewReportBuilder(listStub{counts: []Count{
		{UserID: "U1", Count: 9},
		{UserID: "U2", Count: 8},
		{UserID: "U3", Count: 7},
		{UserID: "U4", Count: 6},
	}}, namesStub{}, 0)

	text, err := b.Build(context.Background(), "G", "2024-03", "3月")
	require.NoError(t, err)
	require.Contains(t, text, "4. U4：6 則\n")
	require.Contains(t, text, "總計：30 則，共 4 人")
}

func TestReportNoData(t *testing.T) {
	b := NewReportBuilder(listStub{}, namesStub{}, 0)

	text, err := b.Build(context.Background(), "G", "2024-03", "3月")
	require.NoError(t, err)
	require.Equal(t, NoDataMessage, text)
}

func TestReportStoreError(t *testing.T) {
	b := NewReportBuilder(listStub{err: errors.New("timeout")}, namesStub{}, 0)

	_, err := b.Build(context.Background(), "G", "2024-03", "3月")
	require.Error(t, err)
}

func TestReportTruncated(t *testing.T) {
	counts := make([]Count, 0, 400)
	names := namesStub{}
	for i := 0; i < 400; i++ {
		id := "U" + strings.Repeat("x", 3) + string(rune('a'+i%26)) + string(rune('a'+i/26))
		counts = append(counts, Count{UserID: id, Count: int64(1000 - i)})
		names[id] = strings.Repeat("名", 20)
	}
	b := NewReportBuilder(listStub{counts: counts}, names, 0)

	text, err := b.Build(context.Background(), "G", "2024-03", "3月")
	require.NoError(t, err)
	require.LessOrEqual(t, utf8.RuneCountInString(text), MaxReportLength)
	require.True(t, strings.HasPrefix(text, "📊 Test Group 3月發話排行榜 (2024-03)\n🥇 "))
	require.Contains(t, text, "\n…\n──────────\n")
	require.True(t, strings.HasSuffix(text, "總計：320200 則，共 400 人"))
	require.NotContains(t, text, "400. ")
}

func TestReportFitsWithoutEllipsis(t *testing.T) {
	b := NewReportBuilder(listStub{counts: []Count{{UserID: "A", Count: 1}}}, namesStub{"A": "Alice"}, 0)
	b.maxLen = utf8.RuneCountInString("📊 Test Group 3月發話排行榜 (2024-03)\n🥇 Alice：1 則\n──────────\n總計：1 則，共 1 人")

	text, err := b.Build(context.Background(), "G", "2024-03", "3月")
	require.NoError(t, err)
	require.NotContains(t, text, "…")
	require.True(t, strings.HasSuffix(text, "總計：1 則，共 1 人"))
}
