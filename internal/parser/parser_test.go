package parser

import (
	"testing"
	"time"

	"github.com/hray3182/MindIt/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var brt = time.FixedZone("BRT", -3*60*60)

// Wednesday 12 March 2025
func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 12, hour, minute, 0, 0, brt)
}

func TestParse_Rollover(t *testing.T) {
	intent, err := Parse("tarefa as 9", at(14, 0))
	require.NoError(t, err)
	assert.Equal(t, Complete, intent.Kind)
	assert.Equal(t, "tarefa", intent.Task)
	assert.Equal(t, time.Date(2025, 3, 13, 9, 0, 0, 0, brt), intent.Target)

	intent, err = Parse("tarefa as 9", at(8, 0))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 12, 9, 0, 0, 0, brt), intent.Target)
}

func TestParse_RolloverWhenExactlyNow(t *testing.T) {
	intent, err := Parse("tarefa às 14:00", at(14, 0))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 13, 14, 0, 0, 0, brt), intent.Target)
}

func TestParse_WeekdayIsStrictlyAfterReference(t *testing.T) {
	intent, err := Parse("reunião quarta 10h", at(8, 0))
	require.NoError(t, err)
	assert.Equal(t, Complete, intent.Kind)
	assert.Equal(t, "day_time", intent.Rule)
	assert.Equal(t, time.Date(2025, 3, 19, 10, 0, 0, 0, brt), intent.Target)

	intent, err = Parse("reunião sexta-feira às 14:30", at(8, 0))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 14, 30, 0, 0, brt), intent.Target)
}

func TestParse_DayTime(t *testing.T) {
	tests := []struct {
		name string
		text string
		ref  time.Time
		task string
		want time.Time
	}{
		{"tomorrow with connective", "ligar pro joão amanhã às 9", at(20, 0), "ligar pro joão", time.Date(2025, 3, 13, 9, 0, 0, 0, brt)},
		{"tomorrow without accent", "pagar aluguel amanha 8h30", at(20, 0), "pagar aluguel", time.Date(2025, 3, 13, 8, 30, 0, 0, brt)},
		{"today rolls over", "treino hoje 7", at(20, 0), "treino", time.Date(2025, 3, 13, 7, 0, 0, 0, brt)},
		{"today ahead", "treino hoje 21:15", at(20, 0), "treino", time.Date(2025, 3, 12, 21, 15, 0, 0, brt)},
		{"saturday with article", "feira no sábado 10", at(9, 0), "feira", time.Date(2025, 3, 15, 10, 0, 0, 0, brt)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := Parse(tt.text, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, Complete, intent.Kind)
			assert.Equal(t, tt.task, intent.Task)
			assert.Equal(t, tt.want, intent.Target)
		})
	}
}

func TestParse_Escalating(t *testing.T) {
	ref := at(10, 7).Add(13 * time.Second)

	intent, err := Parse("ler contrato em 20 minutos", ref)
	require.NoError(t, err)
	assert.Equal(t, Escalating, intent.Kind)
	assert.Equal(t, "ler contrato", intent.Task)
	assert.Equal(t, ref.Add(20*time.Minute), intent.Target)
	assert.Equal(t, 2, intent.TotalEscalations)

	intent, err = Parse("buscar encomenda daqui a 2 horas", ref)
	require.NoError(t, err)
	assert.Equal(t, Escalating, intent.Kind)
	assert.Equal(t, ref.Add(2*time.Hour), intent.Target)

	intent, err = Parse("renew passport in 3 days", ref)
	require.NoError(t, err)
	assert.Equal(t, ref.AddDate(0, 0, 3), intent.Target)
}

func TestParse_PrecedenceRelativeBeforeTrailingNumber(t *testing.T) {
	intent, err := Parse("ligar 2 vezes em 10 min", at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, "relative", intent.Rule)
	assert.Equal(t, "ligar 2 vezes", intent.Task)
}

func TestParse_TimeTokenForms(t *testing.T) {
	tests := []struct {
		text   string
		hour   int
		minute int
	}{
		{"tarefa 14:30", 14, 30},
		{"tarefa 9.15", 9, 15},
		{"tarefa 9h", 9, 0},
		{"tarefa 9h45", 9, 45},
		{"tarefa 930", 9, 30},
		{"tarefa 1745", 17, 45},
		{"tarefa as 18hrs", 18, 0},
		{"tarefa às 7 horas", 7, 0},
		{"tarefa 22", 22, 0},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			intent, err := Parse(tt.text, at(6, 0))
			require.NoError(t, err)
			require.Equal(t, Complete, intent.Kind)
			assert.Equal(t, "tarefa", intent.Task)
			assert.Equal(t, tt.hour, intent.Target.Hour())
			assert.Equal(t, tt.minute, intent.Target.Minute())
		})
	}
}

func TestParse_InvalidTimeRejected(t *testing.T) {
	for _, text := range []string{"tarefa as 25:99", "tarefa 24h", "tarefa às 9:75", "reunião amanhã 25:00"} {
		t.Run(text, func(t *testing.T) {
			intent, err := Parse(text, at(10, 0))
			assert.True(t, apperr.IsInvalidTime(err), "got %v", err)
			assert.Equal(t, NoMatch, intent.Kind)
		})
	}
}

func TestParse_DayOnlyIsPartial(t *testing.T) {
	intent, err := Parse("consulta no dentista amanhã", at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, Partial, intent.Kind)
	assert.Equal(t, "consulta no dentista", intent.Task)
	assert.Equal(t, "amanhã", intent.Day.Token)
	assert.Equal(t, time.Date(2025, 3, 13, 0, 0, 0, 0, brt), intent.Day.Date)
}

func TestParse_OutOfRangeTrailingNumberIsTask(t *testing.T) {
	ref := at(10, 0)
	intent, err := Parse("ler capítulo 35", ref)
	require.NoError(t, err)
	assert.Equal(t, "fallback", intent.Rule)
	assert.Equal(t, "ler capítulo 35", intent.Task)
	assert.Equal(t, ref.Add(time.Hour), intent.Target)
}

func TestParse_Fallback(t *testing.T) {
	ref := at(10, 0)
	intent, err := Parse("  Me lembra de regar as plantas! ", ref)
	require.NoError(t, err)
	assert.Equal(t, Complete, intent.Kind)
	assert.Equal(t, "regar as plantas", intent.Task)
	assert.Equal(t, ref.Add(time.Hour), intent.Target)
}

func TestParse_NoMatch(t *testing.T) {
	for _, text := range []string{"", "   ", "9h", "amanhã", "às 14:00"} {
		intent, err := Parse(text, at(10, 0))
		require.NoError(t, err, text)
		assert.Equal(t, NoMatch, intent.Kind, text)
	}
}

func TestCompleteWithTime(t *testing.T) {
	partial, err := Parse("consulta amanhã", at(10, 0))
	require.NoError(t, err)
	require.Equal(t, Partial, partial.Kind)

	intent, ok, err := CompleteWithTime(partial, "às 15h30", at(10, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Complete, intent.Kind)
	assert.Equal(t, "consulta", intent.Task)
	assert.Equal(t, time.Date(2025, 3, 13, 15, 30, 0, 0, brt), intent.Target)

	_, ok, err = CompleteWithTime(partial, "não sei ainda", at(10, 1))
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = CompleteWithTime(partial, "26h", at(10, 1))
	assert.True(t, ok)
	assert.True(t, apperr.IsInvalidTime(err))
}

func TestResolveDay(t *testing.T) {
	ref := at(10, 0)
	tests := map[string]time.Weekday{
		"segunda":      time.Monday,
		"terça-feira":  time.Tuesday,
		"terca":        time.Tuesday,
		"quinta feira": time.Thursday,
		"sabado":       time.Saturday,
		"domingo":      time.Sunday,
	}
	for token, weekday := range tests {
		day, ok := ResolveDay(token, ref)
		require.True(t, ok, token)
		assert.Equal(t, weekday, day.Date.Weekday(), token)
		assert.True(t, day.Date.After(ref), token)
		assert.True(t, day.Date.Sub(ref) < 7*24*time.Hour, token)
	}

	_, ok := ResolveDay("feriado", ref)
	assert.False(t, ok)
}
